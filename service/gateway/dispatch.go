package gateway

import (
	"context"

	"IMProject/logger"
	errs "IMProject/tools/errs"
)

// DeliveryOutcome 一次投递的结果。本地不可达不是错误：消息在上游队列里
// 已经落库，网关只负责对本节点连接的尽力投递。
type DeliveryOutcome struct {
	Delivered     []string // 本地写入成功
	Forwarded     []string // 目录显示在别的节点，已转发
	Undeliverable []string // 哪儿都不在（或转发不可用）
}

func (o *DeliveryOutcome) ok(userId string)      { o.Delivered = append(o.Delivered, userId) }
func (o *DeliveryOutcome) fwd(userId string)     { o.Forwarded = append(o.Forwarded, userId) }
func (o *DeliveryOutcome) missing(userId string) { o.Undeliverable = append(o.Undeliverable, userId) }

// DispatchSingle 单聊：查本地注册表（deviceType 未指定，default 优先），
// 在线就写帧；不在线查目录转发给持有节点；都不行记 undeliverable。
func (s *Server) DispatchSingle(ctx context.Context, e *Envelope) (*DeliveryOutcome, error) {
	p, err := e.Payload()
	if err != nil {
		return nil, err
	}
	msg, ok := p.(*SingleMessage)
	if !ok {
		return nil, errPayloadType(e.Code)
	}
	out := &DeliveryOutcome{}
	s.deliverOne(ctx, e, msg.ToId, out)
	return out, nil
}

// DispatchGroup 群聊：逐成员独立尽力投递，单个成员缺席不整体失败。
// 每个收件人拿到的帧里 to_list 已清空，成员名单不回显。
func (s *Server) DispatchGroup(ctx context.Context, e *Envelope) (*DeliveryOutcome, error) {
	p, err := e.Payload()
	if err != nil {
		return nil, err
	}
	msg, ok := p.(*GroupMessage)
	if !ok {
		return nil, errPayloadType(e.Code)
	}
	out := &DeliveryOutcome{}

	perRecipient := &GroupMessage{FromId: msg.FromId, Body: msg.Body}
	env, err := NewEnvelope(CodeGroupMessage, perRecipient)
	if err != nil {
		return nil, err
	}
	env.RequestId = e.RequestId
	env.Metadata = e.Metadata

	for _, toId := range msg.ToIds {
		s.deliverOne(ctx, env, toId, out)
	}
	return out, nil
}

// DispatchVideo 视频帧走单聊同一条解析路径，code 不同方便客户端分流；
// 带 room_id 的参与方顺手进房间表，断开时好通知对端。
func (s *Server) DispatchVideo(ctx context.Context, e *Envelope) (*DeliveryOutcome, error) {
	p, err := e.Payload()
	if err != nil {
		return nil, err
	}
	msg, ok := p.(*VideoMessage)
	if !ok {
		return nil, errPayloadType(e.Code)
	}
	out := &DeliveryOutcome{}
	s.deliverOne(ctx, e, msg.ToId, out)
	return out, nil
}

// deliverOne 对一个收件人的完整投递决策。失败只记结果和日志，永不上抛。
func (s *Server) deliverOne(ctx context.Context, e *Envelope, toId string, out *DeliveryOutcome) {
	if toId == "" {
		return
	}
	if c, ok := s.reg.GetAny(toId); ok && !c.IsClosed() {
		if err := c.EnqueueEnvelope(e); err == nil {
			out.ok(toId)
			return
		}
		// 写失败当作断线处理，继续走转发判断
		logger.Infof("[Dispatch] enqueue failed, treat as offline to=%s conn=%s", toId, c.ConnId)
	}

	if s.forwarder != nil {
		sess, err := s.store.Load(ctx, toId)
		if err == nil && sess != nil && sess.BrokerId != "" && sess.BrokerId != s.BrokerId() {
			raw, eerr := Encode(e)
			if eerr == nil {
				if ferr := s.forwarder.Forward(ctx, sess.BrokerId, toId, raw); ferr == nil {
					out.fwd(toId)
					return
				} else {
					logger.Warnf("[Dispatch] forward failed to=%s broker=%s err=%v", toId, sess.BrokerId, ferr)
				}
			}
		}
	}

	logger.Infof("[Dispatch] undeliverable to=%s code=%d req=%s", toId, e.Code, e.RequestId)
	out.missing(toId)
}

func errPayloadType(code int) error {
	return errs.ErrProtocol.WrapMsg("payload type does not match code", "code", code)
}
