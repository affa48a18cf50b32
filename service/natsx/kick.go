package natsx

import (
	"encoding/json"

	"IMProject/logger"
	"IMProject/service/gateway"
	"IMProject/tools/decode"
)

// KickEvent 跨节点踢人广播。BrokerId 是发起方，收到自己发的忽略。
type KickEvent struct {
	UserId     string `json:"user_id"`
	DeviceType string `json:"device_type"`
	BrokerId   string `json:"broker_id"`
	Reason     string `json:"reason"`
}

// Kicker 本节点的踢人发布端
type Kicker struct {
	c        *NatsxClient
	subject  string
	brokerId string
}

func NewKicker(c *NatsxClient, subject, brokerId string) *Kicker {
	return &Kicker{c: c, subject: subject, brokerId: brokerId}
}

func (k *Kicker) PublishKick(userId, deviceType, reason string) error {
	ev := KickEvent{UserId: userId, DeviceType: deviceType, BrokerId: k.brokerId, Reason: reason}
	data, err := json.Marshal(&ev)
	if err != nil {
		return err
	}
	return k.c.Publish(k.subject, data)
}

// StartKickSubscriber 订阅踢人广播，命中本地连接就强制下线。
// 广播消息来源杂（别的节点、运营后台），字段宽松解码再收紧。
func StartKickSubscriber(c *NatsxClient, s *gateway.Server) error {
	return c.Subscribe(s.Cfg().KickSubject, func(data []byte) {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			logger.Warnf("[Kick] drop malformed event err=%v", err)
			return
		}
		ev, err := decode.DecodeMap[KickEvent](m)
		if err != nil {
			logger.Warnf("[Kick] drop undecodable event err=%v", err)
			return
		}
		if ev.UserId == "" || ev.BrokerId == s.BrokerId() {
			return
		}
		logger.Infof("[Kick] remote kick user=%s device=%s from=%s reason=%s",
			ev.UserId, ev.DeviceType, ev.BrokerId, ev.Reason)
		s.KickUser(ev.UserId, ev.DeviceType, ev.Reason)
	})
}
