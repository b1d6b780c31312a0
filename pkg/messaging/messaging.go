// Package messaging 定义群发消息的公共类型
package messaging

import (
	"context"
	"fmt"

	"github.com/dumeirei/barbershop-backend/internal/common/utils"
)

// BatchSize 单次请求的最大收件人数量
const BatchSize = 1000

// Message 群发内容
type Message struct {
	Subject string            `json:"subject,omitempty"`
	Body    string            `json:"body"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Result 群发结果
type Result struct {
	SentCount   int      `json:"sent_count"`
	FailedCount int      `json:"failed_count"`
	Errors      []string `json:"errors,omitempty"`
}

// Merge 合并批次结果
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.SentCount += other.SentCount
	r.FailedCount += other.FailedCount
	r.Errors = append(r.Errors, other.Errors...)
}

// FailBatch 将整个批次记为失败
func (r *Result) FailBatch(n int, err error) {
	r.FailedCount += n
	r.Errors = append(r.Errors, err.Error())
}

// BulkSender 群发接口，单个收件人失败计入结果而不是返回错误
type BulkSender interface {
	SendBulk(ctx context.Context, recipients []string, msg Message) (*Result, error)
}

// Batches 按 BatchSize 切分收件人
func Batches(recipients []string, size int) [][]string {
	if size <= 0 {
		size = BatchSize
	}
	return utils.Chunk(recipients, size)
}

// BatchError 批次失败描述
func BatchError(index int, err error) error {
	return fmt.Errorf("batch %d: %w", index, err)
}
