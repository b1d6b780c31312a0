package email

import (
	"context"
	"sync"

	"github.com/dumeirei/barbershop-backend/pkg/messaging"
)

// MockSender 模拟邮件群发器（用于开发/测试）
type MockSender struct {
	mu       sync.Mutex
	Sent     []string
	Subjects []string

	// FailAddresses 命中的地址记为发送失败
	FailAddresses map[string]bool
	// Err 非空时整个调用返回该错误
	Err error
}

// NewMockSender 创建模拟邮件群发器
func NewMockSender() *MockSender {
	return &MockSender{FailAddresses: make(map[string]bool)}
}

// SendBulk 模拟发送
func (s *MockSender) SendBulk(ctx context.Context, recipients []string, msg messaging.Message) (*messaging.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	result := &messaging.Result{}
	for _, addr := range recipients {
		if s.FailAddresses[addr] {
			result.FailedCount++
			result.Errors = append(result.Errors, "bounced: "+addr)
			continue
		}
		s.Sent = append(s.Sent, addr)
		result.SentCount++
	}
	s.Subjects = append(s.Subjects, msg.Subject)
	return result, nil
}

// Count 已发送数量
func (s *MockSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}
