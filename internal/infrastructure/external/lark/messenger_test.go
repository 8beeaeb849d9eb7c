package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockCreator struct {
	createFunc func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error)
	requests   []*larkim.CreateMessageReq
}

func (m *mockCreator) Create(ctx context.Context, req *larkim.CreateMessageReq, _ ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	m.requests = append(m.requests, req)
	return m.createFunc(ctx, req)
}

func okResponse(id string) *larkim.CreateMessageResp {
	return &larkim.CreateMessageResp{
		Data: &larkim.CreateMessageRespData{MessageId: &id},
	}
}

func TestMessenger_SendText(t *testing.T) {
	creator := &mockCreator{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
		return okResponse("om_1"), nil
	}}
	m := NewMessengerWithCreator(creator, "", zap.NewNop())

	err := m.SendText(context.Background(), "oc_approvers", `Invoice "2025-0004" is waiting`)
	require.NoError(t, err)
	require.Len(t, creator.requests, 1)
	require.NotNil(t, creator.requests[0])
}

func TestNewTextBody(t *testing.T) {
	body, err := newTextBody("oc_approvers", `Invoice "2025-0004" is waiting`)
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Equal(t, "oc_approvers", *body.ReceiveId)
	assert.Equal(t, msgTypeText, *body.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(*body.Content), &content))
	assert.Equal(t, `Invoice "2025-0004" is waiting`, content["text"])
}

func TestMessenger_SendTextErrors(t *testing.T) {
	t.Run("validates input", func(t *testing.T) {
		m := NewMessengerWithCreator(&mockCreator{}, "chat_id", zap.NewNop())
		assert.Error(t, m.SendText(context.Background(), "", "hi"))
		assert.Error(t, m.SendText(context.Background(), "oc_1", ""))
	})

	t.Run("transport error", func(t *testing.T) {
		boom := errors.New("dial tcp: timeout")
		m := NewMessengerWithCreator(&mockCreator{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
			return nil, boom
		}}, "chat_id", zap.NewNop())

		assert.ErrorIs(t, m.SendText(context.Background(), "oc_1", "hi"), boom)
	})

	t.Run("api failure", func(t *testing.T) {
		m := NewMessengerWithCreator(&mockCreator{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
			return &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"}}, nil
		}}, "chat_id", zap.NewNop())

		err := m.SendText(context.Background(), "oc_1", "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "230002")
	})
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	require.NoError(t, s.SendText(context.Background(), "oc_1", "hello"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "hello", logs.All()[0].ContextMap()["text"])
}
