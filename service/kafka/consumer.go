package kafka

import (
	"context"

	"github.com/Shopify/sarama"

	"IMProject/logger"
	"IMProject/tools/safe"
)

type consumerGroupHandler struct{}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Infof("[Kafka] consumer group setup")
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Infof("[Kafka] consumer group cleanup")
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		handler, err := GetHandler(msg.Topic)
		if err != nil {
			logger.Warnf("[Kafka] no handler topic=%s", msg.Topic)
		} else if herr := handler(msg.Topic, msg.Key, msg.Value); herr != nil {
			// 处理失败照样 mark：网关消费是尽力投递，不做重放
			logger.Errorf("[Kafka] handler error topic=%s offset=%d err=%v", msg.Topic, msg.Offset, herr)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// StartConsumerGroup 拉起消费循环，ctx 取消即退出。
func StartConsumerGroup(ctx context.Context, groupID string, topics []string) error {
	group, err := sarama.NewConsumerGroupFromClient(groupID, kafkaClient)
	if err != nil {
		return err
	}

	safe.SafeGo("kafka-consumer-errors", func() {
		for err := range group.Errors() {
			logger.Errorf("[Kafka] consumer group error: %v", err)
		}
	})

	safe.SafeGo("kafka-consumer", func() {
		defer func() { _ = group.Close() }()
		for {
			if err := group.Consume(ctx, topics, &consumerGroupHandler{}); err != nil {
				logger.Errorf("[Kafka] consume error: %v", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	})
	return nil
}
