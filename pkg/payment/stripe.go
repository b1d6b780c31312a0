// Package payment 提供支付扣款与打款转账
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// ErrChargeNotSucceeded 扣款未进入成功状态
var ErrChargeNotSucceeded = errors.New("payment intent did not succeed")

// ChargeResult 扣款结果
type ChargeResult struct {
	Success        bool   `json:"success"`
	TransactionRef string `json:"transaction_ref"`
	Status         string `json:"status"`
}

// TransferResult 转账结果
type TransferResult struct {
	TransferRef string `json:"transfer_ref"`
}

// Charger 对计费账户的支付方式扣款
type Charger interface {
	ChargePaymentMethod(ctx context.Context, customerRef, paymentMethodRef string, amountCents int64, metadata map[string]string) (*ChargeResult, error)
}

// Transferer 向理发师收款账户转账
type Transferer interface {
	Transfer(ctx context.Context, destination string, amountCents int64, metadata map[string]string, idempotencyKey string) (*TransferResult, error)
}

// Client 支付客户端
type Client interface {
	Charger
	Transferer
}

// ToCents 金额转为最小货币单位，四舍五入
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

type paymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type transferAPI interface {
	New(params *stripe.TransferParams) (*stripe.Transfer, error)
}

// StripeClient Stripe 支付客户端
type StripeClient struct {
	intents   paymentIntentAPI
	transfers transferAPI
	currency  string
}

// NewStripeClient 创建 Stripe 客户端
func NewStripeClient(secretKey, currency string) *StripeClient {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeClient{
		intents:   sc.PaymentIntents,
		transfers: sc.Transfers,
		currency:  strings.ToLower(currency),
	}
}

// ChargePaymentMethod 以离线方式确认 PaymentIntent，仅 succeeded 视为成功
func (c *StripeClient) ChargePaymentMethod(ctx context.Context, customerRef, paymentMethodRef string, amountCents int64, metadata map[string]string) (*ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(c.currency),
		Customer:      stripe.String(customerRef),
		PaymentMethod: stripe.String(paymentMethodRef),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe charge: %w", describe(err))
	}

	result := &ChargeResult{TransactionRef: pi.ID, Status: string(pi.Status)}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return result, fmt.Errorf("%w: status %s", ErrChargeNotSucceeded, pi.Status)
	}
	result.Success = true
	return result, nil
}

// Transfer 向 Connect 账户转账
func (c *StripeClient) Transfer(ctx context.Context, destination string, amountCents int64, metadata map[string]string, idempotencyKey string) (*TransferResult, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(c.currency),
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	tr, err := c.transfers.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe transfer: %w", describe(err))
	}
	return &TransferResult{TransferRef: tr.ID}, nil
}

// describe 提取 Stripe 错误中对用户有意义的信息
func describe(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code != "" {
			return fmt.Errorf("%s: %s: %w", stripeErr.Code, stripeErr.Msg, err)
		}
		return fmt.Errorf("%s: %w", stripeErr.Msg, err)
	}
	return err
}
