package notify

import (
	"context"
	"fmt"

	xhttp "FinPulse/pkg/http"
)

type wechatMarkdown struct {
	Content string `json:"content"`
}

type wechatMessage struct {
	MsgType  string         `json:"msgtype"`
	Markdown wechatMarkdown `json:"markdown"`
}

type wechatReply struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// WeChat posts to a WeCom group robot webhook.
type WeChat struct {
	webhook string
	http    *xhttp.Client
}

func NewWeChat(webhook string, client *xhttp.Client) *WeChat {
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(defaultTimeout))
	}
	return &WeChat{webhook: webhook, http: client}
}

func (w *WeChat) Name() string { return "wechat" }

// Send succeeds only when the robot answers errcode 0.
func (w *WeChat) Send(ctx context.Context, text string) error {
	reply := wechatReply{ErrCode: -1}
	err := w.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    w.webhook,
		Body:   wechatMessage{MsgType: "markdown", Markdown: wechatMarkdown{Content: text}},
	}, &reply)
	if err != nil {
		return fmt.Errorf("wechat post: %w", err)
	}
	if reply.ErrCode != 0 {
		return fmt.Errorf("wechat errcode %d: %s", reply.ErrCode, reply.ErrMsg)
	}
	return nil
}
