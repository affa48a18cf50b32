package handlers

import (
	"context"
	"strconv"
	"time"

	"IMProject/service/gateway"
)

// 消息类处理器只做三件事：验登录态、委托投递、给发送端回执。
// 投递结果永不让连接出错退出，不可达在回执 metadata 里体现。

type SingleMessageHandler struct{}

func NewSingleMessageHandler() gateway.Handler { return &SingleMessageHandler{} }

func (h *SingleMessageHandler) Code() int { return gateway.CodeSingleMessage }

func (h *SingleMessageHandler) Handle(ctx *gateway.Context, e *gateway.Envelope, c *gateway.Client) error {
	return deliverAndAck(ctx, e, c, ctx.S.DispatchSingle)
}

type GroupMessageHandler struct{}

func NewGroupMessageHandler() gateway.Handler { return &GroupMessageHandler{} }

func (h *GroupMessageHandler) Code() int { return gateway.CodeGroupMessage }

func (h *GroupMessageHandler) Handle(ctx *gateway.Context, e *gateway.Envelope, c *gateway.Client) error {
	return deliverAndAck(ctx, e, c, ctx.S.DispatchGroup)
}

// VideoMessageHandler 视频信令帧。带 room_id 的发送方记入房间表，
// 断开时 reaper 才知道要通知谁。
type VideoMessageHandler struct{}

func NewVideoMessageHandler() gateway.Handler { return &VideoMessageHandler{} }

func (h *VideoMessageHandler) Code() int { return gateway.CodeVideoMessage }

func (h *VideoMessageHandler) Handle(ctx *gateway.Context, e *gateway.Envelope, c *gateway.Client) error {
	if _, ok := c.Identity(); !ok {
		c.CloseWith(gateway.BuildAck(e, gateway.CodeNotLogin, "not logged in"))
		return nil
	}
	if roomId := e.Metadata["room_id"]; roomId != "" {
		ctx.S.Rooms().Join(roomId, c)
	}
	return deliverAndAck(ctx, e, c, ctx.S.DispatchVideo)
}

type dispatchFn func(context.Context, *gateway.Envelope) (*gateway.DeliveryOutcome, error)

func deliverAndAck(ctx *gateway.Context, e *gateway.Envelope, c *gateway.Client, dispatch dispatchFn) error {
	if _, ok := c.Identity(); !ok {
		c.CloseWith(gateway.BuildAck(e, gateway.CodeNotLogin, "not logged in"))
		return nil
	}
	c.Touch()

	dctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	out, err := dispatch(dctx, e)
	if err != nil {
		// 负载形状不对才会走到这：协议错误，回执后由调用方决定连接去留
		return err
	}

	ack := gateway.BuildAck(e, gateway.CodeSuccess, "accepted")
	ack.Metadata = map[string]string{
		"delivered":     strconv.Itoa(len(out.Delivered)),
		"forwarded":     strconv.Itoa(len(out.Forwarded)),
		"undeliverable": strconv.Itoa(len(out.Undeliverable)),
	}
	return c.EnqueueEnvelope(ack)
}
