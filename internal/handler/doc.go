// Package handler 按业务拆分的 HTTP 处理器：financial（佣金与打款）、marketing（营销活动与计费）、notification（审计通知）。
//
// swag 从该目录递归扫描注释：
//
//	swag init -g cmd/api-gateway/main.go --dir ./,./internal/handler
package handler
