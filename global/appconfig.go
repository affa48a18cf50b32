package global

import "time"

// AppConfig 网关节点配置（代码内配置，不读 YAML）
type AppConfig struct {
	NodeType      string
	GroupId       string        // kafka group 节点
	GatewayNodeId string        // 节点ID（brokerId，写进会话记录）
	ForwardTopic  string        // 跨节点转发 topic 模板，如 "im.gateway.%s"
	KickSubject   string        // NATS 强制下线广播 subject
	Port          int           // http/ws 启动端口
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KafkaBrokers  []string
	NatsServers   []string

	// 连接与会话策略
	MultiDevice       bool          // 多端模式：同一用户每种设备各一条连接
	RejectNewOnDup    bool          // 多端冲突时拒绝新连接（否则踢旧连接）
	HeartbeatInterval time.Duration // 客户端心跳周期
	RefreshThreshold  time.Duration // token 剩余低于该值时下发刷新指令
	IdleTimeout       time.Duration // 无任何帧（含心跳）超过该值强制断开
	RenewalInterval   time.Duration // 会话目录 TTL 批量续期周期
	SendQueueSize     int           // 每连接发送队列长度
	MaxDecodeErrors   int           // 连续解码失败阈值，超过即断开
	WorkerCount       int           // 阻塞调用工作池大小
	WorkerQueueSize   int
}

// SessionTTL 会话目录 TTL，固定为 2 倍心跳周期
func (c *AppConfig) SessionTTL() time.Duration {
	return 2 * c.HeartbeatInterval
}
