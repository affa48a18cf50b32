package gateway

import (
	"time"

	errs "IMProject/tools/errs"

	"github.com/fxamacker/cbor/v2"
)

// ===== 消息码 =====
// 与平台其它子系统共享的指令码，分段含义见各段注释。
const (
	CodeError   = -1 // 协议错误/非法数据包
	CodeSuccess = 0

	/* 鉴权 (100 - 199) */
	CodeLogin        = 100
	CodeLogout       = 101
	CodeRefreshToken = 103 // 通知客户端主动刷新 token
	CodeForceLogout  = 104 // 挤下线
	CodeTokenError   = 105
	CodeNotLogin     = 106

	/* 连接 / 会话 (200 - 299) */
	CodeDisconnect       = 202
	CodeDuplicateLogin   = 203
	CodeHeartbeat        = 206
	CodeHeartbeatSuccess = 207
	CodeRegisterSuccess  = 209
	CodeRegisterFailed   = 210

	/* 消息 (1000+) */
	CodeSingleMessage = 1000
	CodeGroupMessage  = 1001
	CodeVideoMessage  = 1002
)

// Envelope 连接层统一帧。二进制 WebSocket 帧里装一个 CBOR 编码的 Envelope，
// 头部字段整数键、零值省略；Data 是按 Code 打标签的变长负载。
type Envelope struct {
	Code       int               `cbor:"1,keyasint"`
	Token      string            `cbor:"2,keyasint,omitempty"`
	RequestId  string            `cbor:"3,keyasint,omitempty"`
	Timestamp  int64             `cbor:"4,keyasint,omitempty"` // unix 毫秒
	ClientIp   string            `cbor:"5,keyasint,omitempty"`
	UserAgent  string            `cbor:"6,keyasint,omitempty"`
	DeviceName string            `cbor:"7,keyasint,omitempty"`
	DeviceType string            `cbor:"8,keyasint,omitempty"`
	Message    string            `cbor:"9,keyasint,omitempty"` // 回执/错误文案
	Metadata   map[string]string `cbor:"10,keyasint,omitempty"`
	Data       cbor.RawMessage   `cbor:"11,keyasint,omitempty"`
}

// ===== 负载（按 code 打标签的封闭联合） =====

type LoginPayload struct {
	DeviceId   string `cbor:"device_id,omitempty"`
	DeviceType string `cbor:"device_type,omitempty"`
}

type HeartbeatPayload struct{}

type SingleMessage struct {
	FromId string `cbor:"from"`
	ToId   string `cbor:"to"`
	Body   string `cbor:"body,omitempty"`
}

type GroupMessage struct {
	FromId string   `cbor:"from"`
	ToIds  []string `cbor:"to_list,omitempty"`
	Body   string   `cbor:"body,omitempty"`
}

type VideoMessage struct {
	FromId string `cbor:"from"`
	ToId   string `cbor:"to"`
	Url    string `cbor:"url,omitempty"`
	Type   string `cbor:"type,omitempty"`
}

// Opaque 未知 code 的前向兼容负载：原样保留，由 handler 层拒绝
type Opaque []byte

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.EncOptions{Sort: cbor.SortCoreDeterministic}.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em

	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Decode 解出一帧。未知字段被忽略，负载不在这里解（见 Envelope.Payload）。
func Decode(raw []byte) (*Envelope, error) {
	e := &Envelope{}
	if err := decMode.Unmarshal(raw, e); err != nil {
		return nil, errs.ErrProtocol.WrapMsg(err.Error())
	}
	return e, nil
}

func Encode(e *Envelope) ([]byte, error) {
	raw, err := encMode.Marshal(e)
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg(err.Error())
	}
	return raw, nil
}

// Payload 按 Code 解出具体负载。已知 code 但负载解不出来视为协议错误；
// 未知 code 一律成功解成 Opaque，由 handler 层决定拒绝（协议演进约定）。
func (e *Envelope) Payload() (any, error) {
	switch e.Code {
	case CodeLogin:
		return decodeAs[LoginPayload](e.Data)
	case CodeHeartbeat:
		return decodeAs[HeartbeatPayload](e.Data)
	case CodeSingleMessage:
		return decodeAs[SingleMessage](e.Data)
	case CodeGroupMessage:
		return decodeAs[GroupMessage](e.Data)
	case CodeVideoMessage:
		return decodeAs[VideoMessage](e.Data)
	default:
		if len(e.Data) == 0 {
			return nil, nil
		}
		return Opaque(e.Data), nil
	}
}

func decodeAs[T any](raw cbor.RawMessage) (*T, error) {
	var out T
	if len(raw) == 0 {
		// 缺失负载解成零值，不报错（兼容老客户端）
		return &out, nil
	}
	if err := decMode.Unmarshal(raw, &out); err != nil {
		return nil, errs.ErrProtocol.WrapMsg("payload mismatch", "len", len(raw))
	}
	return &out, nil
}

// NewEnvelope 构造一帧并校验 code 与负载类型一致；不一致直接拒绝编码。
func NewEnvelope(code int, payload any) (*Envelope, error) {
	e := &Envelope{Code: code, Timestamp: time.Now().UnixMilli()}
	if payload == nil {
		return e, nil
	}
	if !payloadMatches(code, payload) {
		return nil, errs.ErrProtocol.WrapMsg("payload type does not match code", "code", code)
	}
	raw, err := encMode.Marshal(payload)
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg(err.Error(), "code", code)
	}
	e.Data = raw
	return e, nil
}

func payloadMatches(code int, payload any) bool {
	switch payload.(type) {
	case LoginPayload, *LoginPayload:
		return code == CodeLogin
	case HeartbeatPayload, *HeartbeatPayload:
		return code == CodeHeartbeat
	case SingleMessage, *SingleMessage:
		return code == CodeSingleMessage
	case GroupMessage, *GroupMessage:
		return code == CodeGroupMessage
	case VideoMessage, *VideoMessage:
		return code == CodeVideoMessage
	case Opaque:
		// 透传负载不限定 code
		return true
	default:
		return false
	}
}

// ---- 构造若干服务端回执 ----

// BuildAck 在请求帧基础上构造回执：保留 requestId，替换 code 与文案
func BuildAck(req *Envelope, code int, message string) *Envelope {
	return &Envelope{
		Code:      code,
		RequestId: req.RequestId,
		Timestamp: time.Now().UnixMilli(),
		Message:   message,
	}
}

// BuildNotice 服务端主动下行（踢下线/断开通知等）
func BuildNotice(code int, message string, meta map[string]string) *Envelope {
	return &Envelope{
		Code:      code,
		Timestamp: time.Now().UnixMilli(),
		Message:   message,
		Metadata:  meta,
	}
}
