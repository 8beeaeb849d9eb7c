// Package lark delivers approver notifications through the Lark (Feishu) IM API.
package lark

import (
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// Config holds Lark client configuration
type Config struct {
	AppID     string
	AppSecret string

	// ReceiveIDType is how receive ids are interpreted: chat_id, open_id, user_id or email
	ReceiveIDType string
}

// NewClient creates a Lark SDK client with tenant token caching
func NewClient(cfg Config) *lark.Client {
	return lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
}
