package gateway

// Handler 一类消息码的处理器。分发走显式的 code -> handler 表，不走反射。
type Handler interface {
	Code() int
	Handle(ctx *Context, e *Envelope, c *Client) error
}

// Context 传给 handler 的环境
type Context struct {
	S *Server
}

type Dispatcher struct {
	handlers map[int]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[int]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Code()] = h }

// GetHandler 未注册返回 nil，缺 handler 的回应策略留给读循环
func (d *Dispatcher) GetHandler(code int) Handler {
	return d.handlers[code]
}
