package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ChargeCall 扣款调用记录
type ChargeCall struct {
	CustomerRef      string
	PaymentMethodRef string
	AmountCents      int64
	Metadata         map[string]string
}

// TransferCall 转账调用记录
type TransferCall struct {
	Destination    string
	AmountCents    int64
	Metadata       map[string]string
	IdempotencyKey string
}

// MockClient 模拟支付客户端（用于开发测试）
type MockClient struct {
	mu        sync.Mutex
	Charges   []ChargeCall
	Transfers []TransferCall

	// ChargeErr 非空时扣款返回该错误
	ChargeErr error
	// TransferErrs 按收款账户返回转账错误
	TransferErrs map[string]error
}

// NewMockClient 创建模拟支付客户端
func NewMockClient() *MockClient {
	return &MockClient{TransferErrs: make(map[string]error)}
}

// ChargePaymentMethod 模拟扣款
func (m *MockClient) ChargePaymentMethod(ctx context.Context, customerRef, paymentMethodRef string, amountCents int64, metadata map[string]string) (*ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Charges = append(m.Charges, ChargeCall{
		CustomerRef:      customerRef,
		PaymentMethodRef: paymentMethodRef,
		AmountCents:      amountCents,
		Metadata:         metadata,
	})
	if m.ChargeErr != nil {
		return nil, m.ChargeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ChargeResult{Success: true, TransactionRef: "pi_mock_" + uuid.NewString()[:8], Status: "succeeded"}, nil
}

// Transfer 模拟转账
func (m *MockClient) Transfer(ctx context.Context, destination string, amountCents int64, metadata map[string]string, idempotencyKey string) (*TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Transfers = append(m.Transfers, TransferCall{
		Destination:    destination,
		AmountCents:    amountCents,
		Metadata:       metadata,
		IdempotencyKey: idempotencyKey,
	})
	if err, ok := m.TransferErrs[destination]; ok {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &TransferResult{TransferRef: "tr_mock_" + uuid.NewString()[:8]}, nil
}

// ChargeCount 扣款调用次数
func (m *MockClient) ChargeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Charges)
}

// TransferCount 转账调用次数
func (m *MockClient) TransferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Transfers)
}
