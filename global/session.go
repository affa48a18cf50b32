package global

// UserSession 分布式会话记录：集群负载均衡与跨节点转发都读它
type UserSession struct {
	UserId     string `json:"user_id"`
	BrokerId   string `json:"broker_id"`   // 持有连接的网关节点
	DeviceType string `json:"device_type"`
	Token      string `json:"token"`
	IssuedAt   int64  `json:"issued_at"` // unix 秒
	TTL        int64  `json:"ttl"`       // 秒
}
