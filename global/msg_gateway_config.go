package global

import "time"

var MessageGatewayConfig = AppConfig{
	NodeType:      "msg_gateway",
	GroupId:       "message_gateway_01", // kafka group 节点
	GatewayNodeId: "gateway_01",         // 节点ID
	ForwardTopic:  "im.gateway.%s",      // 跨节点转发的topic
	KickSubject:   "im.kick",
	Port:          8080,
	RedisAddr:     "127.0.0.1:6379",
	RedisDB:       0,
	KafkaBrokers:  []string{"127.0.0.1:9092"},
	NatsServers:   []string{"nats://127.0.0.1:4222"},

	MultiDevice:       true,
	RejectNewOnDup:    true,
	HeartbeatInterval: 25 * time.Second,
	RefreshThreshold:  15 * time.Second,
	IdleTimeout:       75 * time.Second,
	RenewalInterval:   5 * time.Second,
	SendQueueSize:     256,
	MaxDecodeErrors:   5,
	WorkerCount:       32,
	WorkerQueueSize:   1024,
}
