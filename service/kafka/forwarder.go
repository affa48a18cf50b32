package kafka

import (
	"context"

	"IMProject/global"
	"IMProject/logger"
	"IMProject/service/gateway"
)

// Forwarder 把别的节点持有的收件人的帧写进该节点专属 topic。
// 每个网关节点消费自己的 topic，收到后当作本地投递重走一遍分发。
type Forwarder struct {
	topicPattern string
}

func NewForwarder(topicPattern string) *Forwarder {
	return &Forwarder{topicPattern: topicPattern}
}

func (f *Forwarder) Forward(_ context.Context, brokerId, userId string, raw []byte) error {
	topic := global.NodeTopic(f.topicPattern, brokerId)
	return SendBytes(topic, userId, raw)
}

// StartGatewayConsumer 订阅本节点 topic。到帧后解码并按 code 走分发，
// 此时收件人要么在本地要么已经又跳走了——deliverOne 自己会兜底。
func StartGatewayConsumer(ctx context.Context, s *gateway.Server) error {
	topic := global.NodeTopic(s.Cfg().ForwardTopic, s.BrokerId())
	RegisterHandler(topic, func(_ string, key, value []byte) error {
		e, err := gateway.Decode(value)
		if err != nil {
			logger.Warnf("[Kafka] drop undecodable frame key=%s err=%v", string(key), err)
			return nil
		}
		var derr error
		switch e.Code {
		case gateway.CodeSingleMessage:
			_, derr = s.DispatchSingle(ctx, e)
		case gateway.CodeGroupMessage:
			_, derr = s.DispatchGroup(ctx, e)
		case gateway.CodeVideoMessage:
			_, derr = s.DispatchVideo(ctx, e)
		default:
			logger.Warnf("[Kafka] unexpected forwarded code=%d key=%s", e.Code, string(key))
		}
		return derr
	})
	groupId := s.Cfg().GroupId
	if groupId == "" {
		groupId = Cfg.GroupID
	}
	// 每个节点独立 group：本节点 topic 的消息只有本节点消费
	return StartConsumerGroup(ctx, groupId+"-"+s.BrokerId(), []string{topic})
}
