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
)

type fakeMessages struct {
	reqs []*larkim.CreateMessageReq
	resp *larkim.CreateMessageResp
	err  error
}

func (f *fakeMessages) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func okResponse(id string) *larkim.CreateMessageResp {
	return &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: &id}}
}

func TestMessenger_SendMessage(t *testing.T) {
	fake := &fakeMessages{resp: okResponse("om_1")}
	m := &Messenger{messages: fake, logger: zap.NewNop()}

	err := m.SendMessage(context.Background(), "ou_owner", "Project \"PRJ-20261017-001\" approved\nsee link")
	require.NoError(t, err)
	require.Len(t, fake.reqs, 1)

	req := fake.reqs[0]
	assert.Equal(t, "ou_owner", *req.Body.ReceiveId)
	assert.Equal(t, larkim.MsgTypeText, *req.Body.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(*req.Body.Content), &content))
	assert.Equal(t, "Project \"PRJ-20261017-001\" approved\nsee link", content["text"])
}

func TestMessenger_SendMessage_Failures(t *testing.T) {
	tests := []struct {
		name    string
		openID  string
		content string
		fake    *fakeMessages
	}{
		{name: "empty open id", openID: "", content: "x", fake: &fakeMessages{resp: okResponse("om")}},
		{name: "empty content", openID: "ou", content: "", fake: &fakeMessages{resp: okResponse("om")}},
		{name: "transport error", openID: "ou", content: "x", fake: &fakeMessages{err: errors.New("dial tcp: timeout")}},
		{
			name: "api error", openID: "ou", content: "x",
			fake: &fakeMessages{resp: &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230013, Msg: "bot has no availability to this user"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Messenger{messages: tt.fake, logger: zap.NewNop()}
			assert.Error(t, m.SendMessage(context.Background(), tt.openID, tt.content))
		})
	}
}

func TestMessenger_SendCardMessage(t *testing.T) {
	fake := &fakeMessages{resp: okResponse("om_2")}
	m := &Messenger{messages: fake, logger: zap.NewNop()}

	card := map[string]interface{}{"header": map[string]string{"title": "PRJ-20261017-001"}}
	require.NoError(t, m.SendCardMessage(context.Background(), "ou_owner", card))
	assert.Equal(t, larkim.MsgTypeInteractive, *fake.reqs[0].Body.MsgType)

	assert.Error(t, m.SendCardMessage(context.Background(), "ou_owner", nil))
}
