package errs

import "fmt"

// 错误码分段：1xx 协议 / 2xx 鉴权 / 3xx 策略 / 4xx 投递 / 5xx 依赖
const (
	ProtocolErrorCode     = 101
	AuthErrorCode         = 201
	PolicyViolationCode   = 301
	DeliveryFailureCode   = 401
	DependencyFailureCode = 501

	ServerInternalError = 500
)

var (
	// ErrProtocol 帧格式非法：丢帧不断连，超过阈值才断
	ErrProtocol = NewCodeError(ProtocolErrorCode, "malformed frame")
	// ErrAuth token 非法/过期：先回错误包再关闭连接
	ErrAuth = NewCodeError(AuthErrorCode, "invalid or expired token")
	// ErrPolicy 单端策略下的重复登录：拒绝新连接，老连接不动
	ErrPolicy = NewCodeError(PolicyViolationCode, "duplicate device login")
	// ErrDelivery 本地不可达：记录即可，不上抛
	ErrDelivery = NewCodeError(DeliveryFailureCode, "recipient not locally reachable")
	// ErrDependency 会话目录不可用：登录拒绝、心跳降级
	ErrDependency = NewCodeError(DependencyFailureCode, "session directory unavailable")
)

func New(msg string, kv ...any) *CodeError {
	return NewCodeError(ServerInternalError, toString(msg, kv))
}

func sprint(v any) string { return fmt.Sprint(v) }
