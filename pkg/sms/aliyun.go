// Package sms 提供营销短信群发
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dysmsapi "github.com/alibabacloud-go/dysmsapi-20170525/v3/client"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"

	"github.com/dumeirei/barbershop-backend/pkg/messaging"
)

// AliyunConfig 阿里云短信配置
type AliyunConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	SignName        string
	TemplateCode    string // 营销模板，需包含 ${content} 变量
	RegionID        string // 默认 cn-hangzhou
}

type smsAPI interface {
	SendSmsWithOptions(request *dysmsapi.SendSmsRequest, runtime *util.RuntimeOptions) (*dysmsapi.SendSmsResponse, error)
}

// AliyunBulkSender 阿里云短信群发，号码以逗号拼接，每批最多 1000 个
type AliyunBulkSender struct {
	api          smsAPI
	signName     string
	templateCode string
}

// NewAliyunBulkSender 创建阿里云短信群发器
func NewAliyunBulkSender(cfg *AliyunConfig) (*AliyunBulkSender, error) {
	if cfg.RegionID == "" {
		cfg.RegionID = "cn-hangzhou"
	}

	client, err := dysmsapi.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		RegionId:        tea.String(cfg.RegionID),
		Endpoint:        tea.String("dysmsapi.aliyuncs.com"),
	})
	if err != nil {
		return nil, fmt.Errorf("create aliyun sms client: %w", err)
	}

	return &AliyunBulkSender{
		api:          client,
		signName:     cfg.SignName,
		templateCode: cfg.TemplateCode,
	}, nil
}

// SendBulk 分批发送，单批失败计入失败数并继续下一批
func (s *AliyunBulkSender) SendBulk(ctx context.Context, recipients []string, msg messaging.Message) (*messaging.Result, error) {
	param, err := json.Marshal(map[string]string{"content": msg.Body})
	if err != nil {
		return nil, err
	}

	result := &messaging.Result{}
	for i, batch := range messaging.Batches(recipients, messaging.BatchSize) {
		if err := ctx.Err(); err != nil {
			result.FailBatch(len(batch), messaging.BatchError(i, err))
			continue
		}

		resp, err := s.api.SendSmsWithOptions(&dysmsapi.SendSmsRequest{
			PhoneNumbers:  tea.String(strings.Join(batch, ",")),
			SignName:      tea.String(s.signName),
			TemplateCode:  tea.String(s.templateCode),
			TemplateParam: tea.String(string(param)),
		}, runtimeOptions(ctx))
		if err != nil {
			result.FailBatch(len(batch), messaging.BatchError(i, err))
			continue
		}
		if code := responseCode(resp); code != "OK" {
			result.FailBatch(len(batch), messaging.BatchError(i, fmt.Errorf("aliyun sms %s: %s", code, responseMessage(resp))))
			continue
		}
		result.SentCount += len(batch)
	}
	return result, nil
}

// runtimeOptions 将上下文截止时间转换为 SDK 超时
func runtimeOptions(ctx context.Context) *util.RuntimeOptions {
	opts := &util.RuntimeOptions{}
	if deadline, ok := ctx.Deadline(); ok {
		ms := int(time.Until(deadline).Milliseconds())
		if ms < 1 {
			ms = 1
		}
		opts.ReadTimeout = tea.Int(ms)
		opts.ConnectTimeout = tea.Int(ms)
	}
	return opts
}

func responseCode(resp *dysmsapi.SendSmsResponse) string {
	if resp == nil || resp.Body == nil || resp.Body.Code == nil {
		return "EMPTY_RESPONSE"
	}
	return *resp.Body.Code
}

func responseMessage(resp *dysmsapi.SendSmsResponse) string {
	if resp == nil || resp.Body == nil || resp.Body.Message == nil {
		return ""
	}
	return *resp.Body.Message
}
