package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := &Envelope{
			Code:       rapid.IntRange(-1, 2000).Draw(t, "code"),
			Token:      rapid.String().Draw(t, "token"),
			RequestId:  rapid.String().Draw(t, "requestId"),
			Timestamp:  rapid.Int64Range(0, 1<<50).Draw(t, "ts"),
			ClientIp:   rapid.String().Draw(t, "ip"),
			UserAgent:  rapid.String().Draw(t, "ua"),
			DeviceName: rapid.String().Draw(t, "deviceName"),
			DeviceType: rapid.String().Draw(t, "deviceType"),
			Message:    rapid.String().Draw(t, "message"),
		}
		raw, err := Encode(in)
		require.NoError(t, err)

		out, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, in, out)
	})
}

func TestPayloadRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msg := &GroupMessage{
			FromId: rapid.StringMatching(`u[0-9]{1,6}`).Draw(t, "from"),
			ToIds:  rapid.SliceOfN(rapid.StringMatching(`u[0-9]{1,6}`), 0, 8).Draw(t, "toIds"),
			Body:   rapid.String().Draw(t, "body"),
		}
		env, err := NewEnvelope(CodeGroupMessage, msg)
		require.NoError(t, err)

		raw, err := Encode(env)
		require.NoError(t, err)
		back, err := Decode(raw)
		require.NoError(t, err)

		p, err := back.Payload()
		require.NoError(t, err)
		got := p.(*GroupMessage)
		require.Equal(t, msg.FromId, got.FromId)
		require.Equal(t, msg.Body, got.Body)
		if len(msg.ToIds) == 0 {
			require.Empty(t, got.ToIds)
		} else {
			require.Equal(t, msg.ToIds, got.ToIds)
		}
	})
}

func TestUnknownCodePayloadIsOpaque(t *testing.T) {
	env, err := NewEnvelope(CodeSingleMessage, &SingleMessage{FromId: "a", ToId: "b", Body: "hi"})
	require.NoError(t, err)
	env.Code = 4242 // 未分配的指令码

	raw, err := Encode(env)
	require.NoError(t, err)
	back, err := Decode(raw)
	require.NoError(t, err)

	p, err := back.Payload()
	require.NoError(t, err)
	require.IsType(t, Opaque{}, p)
	require.NotEmpty(t, p.(Opaque))
}

func TestNewEnvelopeRejectsMismatchedPayload(t *testing.T) {
	_, err := NewEnvelope(CodeLogin, &SingleMessage{FromId: "a", ToId: "b"})
	require.Error(t, err)

	_, err = NewEnvelope(CodeGroupMessage, &VideoMessage{FromId: "a", ToId: "b"})
	require.Error(t, err)
}

func TestMissingPayloadDecodesToZeroValue(t *testing.T) {
	env := &Envelope{Code: CodeLogin, Token: "tok"}
	raw, err := Encode(env)
	require.NoError(t, err)

	back, err := Decode(raw)
	require.NoError(t, err)
	p, err := back.Payload()
	require.NoError(t, err)
	require.Equal(t, &LoginPayload{}, p)
}

func TestDecodeGarbageFails(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x13, 0x37})
	require.Error(t, err)
}
