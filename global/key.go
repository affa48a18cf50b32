package global

import (
	"fmt"
	"time"
)

// SessionKey 会话目录键：user:<userId>（固定契约，负载均衡按它查路由）
func SessionKey(userId string) string {
	return "user:" + userId
}

// ActiveUsersKey 日活 HyperLogLog 键：active-users:<yyyyMMdd>
func ActiveUsersKey(day time.Time) string {
	return "active-users:" + day.Format("20060102")
}

// NodeTopic 节点收件 topic：每个网关只消费自己的
func NodeTopic(pattern, brokerId string) string {
	return fmt.Sprintf(pattern, brokerId)
}
