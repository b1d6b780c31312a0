// Package email 提供营销邮件群发
package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/dumeirei/barbershop-backend/pkg/messaging"
)

// SendGridConfig SendGrid 配置
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type mailAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender SendGrid 群发，每个收件人一个 personalization，收件人之间互不可见
type SendGridSender struct {
	api  mailAPI
	from *mail.Email
}

// NewSendGridSender 创建 SendGrid 群发器
func NewSendGridSender(cfg *SendGridConfig) *SendGridSender {
	return &SendGridSender{
		api:  sendgrid.NewSendClient(cfg.APIKey),
		from: mail.NewEmail(cfg.FromName, cfg.FromEmail),
	}
}

// SendBulk 分批发送，2xx 以外的响应整批记为失败
func (s *SendGridSender) SendBulk(ctx context.Context, recipients []string, msg messaging.Message) (*messaging.Result, error) {
	result := &messaging.Result{}
	for i, batch := range messaging.Batches(recipients, messaging.BatchSize) {
		if err := ctx.Err(); err != nil {
			result.FailBatch(len(batch), messaging.BatchError(i, err))
			continue
		}

		resp, err := s.api.SendWithContext(ctx, s.build(batch, msg))
		if err != nil {
			result.FailBatch(len(batch), messaging.BatchError(i, err))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			result.FailBatch(len(batch), messaging.BatchError(i, fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)))
			continue
		}
		result.SentCount += len(batch)
	}
	return result, nil
}

func (s *SendGridSender) build(batch []string, msg messaging.Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(s.from)
	m.Subject = msg.Subject
	m.AddContent(mail.NewContent("text/plain", msg.Body))
	for k, v := range msg.Tags {
		m.SetCustomArg(k, v)
	}
	for _, addr := range batch {
		p := mail.NewPersonalization()
		p.AddTos(mail.NewEmail("", addr))
		m.AddPersonalizations(p)
	}
	return m
}
