package sms

import (
	"context"
	"sync"
	"time"

	"github.com/dumeirei/barbershop-backend/pkg/messaging"
)

// MockMessage 模拟消息
type MockMessage struct {
	Phone  string
	Body   string
	SentAt time.Time
}

// MockBulkSender 模拟短信群发器（用于开发/测试）
type MockBulkSender struct {
	mu           sync.Mutex
	SentMessages []MockMessage

	// FailPhones 命中的号码记为发送失败
	FailPhones map[string]bool
	// Err 非空时整个调用返回该错误
	Err error
}

// NewMockBulkSender 创建模拟群发器
func NewMockBulkSender() *MockBulkSender {
	return &MockBulkSender{FailPhones: make(map[string]bool)}
}

// SendBulk 模拟发送
func (s *MockBulkSender) SendBulk(ctx context.Context, recipients []string, msg messaging.Message) (*messaging.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	result := &messaging.Result{}
	for _, phone := range recipients {
		if s.FailPhones[phone] {
			result.FailedCount++
			result.Errors = append(result.Errors, "undeliverable: "+phone)
			continue
		}
		s.SentMessages = append(s.SentMessages, MockMessage{Phone: phone, Body: msg.Body, SentAt: time.Now()})
		result.SentCount++
	}
	return result, nil
}

// Count 已发送数量
func (s *MockBulkSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SentMessages)
}
