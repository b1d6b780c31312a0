package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	dysmsapi "github.com/alibabacloud-go/dysmsapi-20170525/v3/client"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/barbershop-backend/pkg/messaging"
)

type fakeSMSAPI struct {
	requests []*dysmsapi.SendSmsRequest
	runtimes []*util.RuntimeOptions
	// failCall 指定第几次调用失败（从 0 开始）
	failCall map[int]string
}

func (f *fakeSMSAPI) SendSmsWithOptions(req *dysmsapi.SendSmsRequest, rt *util.RuntimeOptions) (*dysmsapi.SendSmsResponse, error) {
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	f.runtimes = append(f.runtimes, rt)

	code, ok := f.failCall[idx]
	switch {
	case ok && code == "ERR":
		return nil, errors.New("connection reset")
	case ok:
		return &dysmsapi.SendSmsResponse{Body: &dysmsapi.SendSmsResponseBody{Code: tea.String(code), Message: tea.String("rejected")}}, nil
	}
	return &dysmsapi.SendSmsResponse{Body: &dysmsapi.SendSmsResponseBody{Code: tea.String("OK")}}, nil
}

func phones(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("+1555%07d", i)
	}
	return out
}

func TestAliyunBulkSender_SendBulk(t *testing.T) {
	t.Run("分批拼接号码", func(t *testing.T) {
		api := &fakeSMSAPI{}
		s := &AliyunBulkSender{api: api, signName: "Barbershop", templateCode: "SMS_MKT"}

		res, err := s.SendBulk(context.Background(), phones(2300), messaging.Message{Body: "Fresh cuts, 20% off"})
		require.NoError(t, err)
		assert.Equal(t, 2300, res.SentCount)
		assert.Zero(t, res.FailedCount)

		require.Len(t, api.requests, 3)
		assert.Len(t, strings.Split(*api.requests[0].PhoneNumbers, ","), 1000)
		assert.Len(t, strings.Split(*api.requests[2].PhoneNumbers, ","), 300)
		assert.JSONEq(t, `{"content":"Fresh cuts, 20% off"}`, *api.requests[0].TemplateParam)
	})

	t.Run("单批失败不影响其他批次", func(t *testing.T) {
		api := &fakeSMSAPI{failCall: map[int]string{1: "isv.BUSINESS_LIMIT_CONTROL", 2: "ERR"}}
		s := &AliyunBulkSender{api: api}

		res, err := s.SendBulk(context.Background(), phones(2500), messaging.Message{Body: "x"})
		require.NoError(t, err)
		assert.Equal(t, 1000, res.SentCount)
		assert.Equal(t, 1500, res.FailedCount)
		assert.Len(t, res.Errors, 2)
	})

	t.Run("截止时间转换为超时", func(t *testing.T) {
		api := &fakeSMSAPI{}
		s := &AliyunBulkSender{api: api}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := s.SendBulk(ctx, phones(1), messaging.Message{Body: "x"})
		require.NoError(t, err)
		require.NotNil(t, api.runtimes[0].ReadTimeout)
		assert.LessOrEqual(t, *api.runtimes[0].ReadTimeout, 5000)
	})

	t.Run("上下文已取消", func(t *testing.T) {
		api := &fakeSMSAPI{}
		s := &AliyunBulkSender{api: api}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := s.SendBulk(ctx, phones(10), messaging.Message{Body: "x"})
		require.NoError(t, err)
		assert.Equal(t, 10, res.FailedCount)
		assert.Empty(t, api.requests)
	})
}

func TestMockBulkSender(t *testing.T) {
	s := NewMockBulkSender()
	s.FailPhones["+15550000001"] = true

	res, err := s.SendBulk(context.Background(), phones(3), messaging.Message{Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SentCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, 2, s.Count())

	s.Err = errors.New("provider down")
	_, err = s.SendBulk(context.Background(), phones(1), messaging.Message{Body: "hi"})
	assert.Error(t, err)
}
