package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"IMProject/global"
	"IMProject/service/gateway"
	errs "IMProject/tools/errs"
	"IMProject/tools/security"
)

// ---- 测试替身 ----

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*global.UserSession
	saveErr  error
	active   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*global.UserSession{}}
}

func (f *fakeStore) Save(_ context.Context, sess *global.UserSession, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.sessions[sess.UserId] = sess
	return nil
}

func (f *fakeStore) Load(_ context.Context, userId string) (*global.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[userId], nil
}

func (f *fakeStore) Delete(_ context.Context, userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, userId)
	return nil
}

func (f *fakeStore) ExtendTTL(context.Context, []string, time.Duration) error { return nil }

func (f *fakeStore) MarkActive(_ context.Context, userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = append(f.active, userId)
	return nil
}

func (f *fakeStore) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

// fakeValidator sub -> 过期时刻
type fakeValidator struct {
	users map[string]time.Time
}

func (v *fakeValidator) Validate(token string) (*security.TokenInfo, error) {
	exp, ok := v.users[token]
	if !ok {
		return nil, errs.ErrAuth.WrapMsg("unknown token")
	}
	return &security.TokenInfo{UserID: "u-" + token, ExpiresAt: exp}, nil
}

type kickRecord struct{ userId, deviceType, reason string }

type fakeKicker struct {
	mu    sync.Mutex
	kicks []kickRecord
}

func (k *fakeKicker) PublishKick(userId, deviceType, reason string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kicks = append(k.kicks, kickRecord{userId, deviceType, reason})
	return nil
}

func testServer(t *testing.T, store gateway.SessionStore, mutate func(*global.AppConfig)) *gateway.Server {
	t.Helper()
	cfg := global.MessageGatewayConfig
	cfg.GatewayNodeId = "node-a"
	if mutate != nil {
		mutate(&cfg)
	}
	validator := &fakeValidator{users: map[string]time.Time{
		"tok-alice": time.Now().Add(time.Hour),
		"tok-bob":   time.Now().Add(time.Hour),
		"tok-weary": time.Now().Add(10 * time.Second), // 低于刷新阈值
	}}
	s := gateway.NewServer(&cfg, store, validator)
	s.Disp().Register(NewLoginHandler())
	s.Disp().Register(NewLogoutHandler())
	s.Disp().Register(NewHeartbeatHandler())
	s.Disp().Register(NewSingleMessageHandler())
	s.Disp().Register(NewGroupMessageHandler())
	s.Disp().Register(NewVideoMessageHandler())
	return s
}

func loginFrame(t *testing.T, token, deviceType string) *gateway.Envelope {
	t.Helper()
	env, err := gateway.NewEnvelope(gateway.CodeLogin, &gateway.LoginPayload{DeviceType: deviceType})
	require.NoError(t, err)
	env.Token = token
	env.RequestId = "req-1"
	return env
}

func handle(t *testing.T, s *gateway.Server, c *gateway.Client, env *gateway.Envelope) {
	t.Helper()
	h := s.Disp().GetHandler(env.Code)
	require.NotNil(t, h)
	require.NoError(t, h.Handle(&gateway.Context{S: s}, env, c))
}

func drainCodes(t *testing.T, c *gateway.Client) []int {
	t.Helper()
	var codes []int
	for {
		select {
		case raw := <-c.Outbox():
			e, err := gateway.Decode(raw)
			require.NoError(t, err)
			codes = append(codes, e.Code)
		default:
			return codes
		}
	}
}

// ---- 登录 ----

func TestLoginSuccess(t *testing.T) {
	store := newFakeStore()
	s := testServer(t, store, nil)
	c := gateway.NewClient("c1", nil, 16)

	handle(t, s, c, loginFrame(t, "tok-alice", "mobile"))

	require.Equal(t, gateway.StateAuthenticated, c.State())
	require.Equal(t, []int{gateway.CodeRegisterSuccess}, drainCodes(t, c))

	got, ok := s.Reg().Get("u-tok-alice", "mobile")
	require.True(t, ok)
	require.Same(t, c, got)

	sess := store.sessions["u-tok-alice"]
	require.NotNil(t, sess)
	require.Equal(t, "node-a", sess.BrokerId)
	require.Equal(t, "mobile", sess.DeviceType)

	require.Eventually(t, func() bool { return store.activeCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestLoginInvalidTokenCloses(t *testing.T) {
	s := testServer(t, newFakeStore(), nil)
	c := gateway.NewClient("c1", nil, 16)

	handle(t, s, c, loginFrame(t, "bogus", "mobile"))

	require.True(t, c.IsClosed())
	require.Equal(t, []int{gateway.CodeTokenError}, drainCodes(t, c))
	require.Equal(t, 0, s.Reg().Len())
}

func TestLoginDuplicateDeviceRejectsNew(t *testing.T) {
	s := testServer(t, newFakeStore(), nil) // MultiDevice + RejectNewOnDup
	old := gateway.NewClient("old", nil, 16)
	handle(t, s, old, loginFrame(t, "tok-alice", "mobile"))
	drainCodes(t, old)

	fresh := gateway.NewClient("new", nil, 16)
	handle(t, s, fresh, loginFrame(t, "tok-alice", "mobile"))

	// 新连接被拒，老连接原地不动
	require.True(t, fresh.IsClosed())
	require.Equal(t, []int{gateway.CodeDuplicateLogin}, drainCodes(t, fresh))
	require.False(t, old.IsClosed())

	got, ok := s.Reg().Get("u-tok-alice", "mobile")
	require.True(t, ok)
	require.Same(t, old, got)
}

func TestLoginSameUserOtherDeviceCoexists(t *testing.T) {
	s := testServer(t, newFakeStore(), nil)
	mobile := gateway.NewClient("m", nil, 16)
	handle(t, s, mobile, loginFrame(t, "tok-alice", "mobile"))

	desktop := gateway.NewClient("d", nil, 16)
	handle(t, s, desktop, loginFrame(t, "tok-alice", "desktop"))

	require.False(t, mobile.IsClosed())
	require.False(t, desktop.IsClosed())
	require.Equal(t, 2, s.Reg().Len())
}

func TestLoginSingleDeviceEvictsOld(t *testing.T) {
	s := testServer(t, newFakeStore(), func(cfg *global.AppConfig) {
		cfg.MultiDevice = false
	})
	old := gateway.NewClient("old", nil, 16)
	handle(t, s, old, loginFrame(t, "tok-alice", "mobile"))
	drainCodes(t, old)

	fresh := gateway.NewClient("new", nil, 16)
	handle(t, s, fresh, loginFrame(t, "tok-alice", "desktop"))

	require.True(t, old.IsClosed())
	require.Contains(t, drainCodes(t, old), gateway.CodeForceLogout)
	require.False(t, fresh.IsClosed())
	require.Equal(t, 1, s.Reg().Len())
}

func TestLoginDirectoryDownRefusesLogin(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errs.ErrDependency.WrapMsg("redis down")
	s := testServer(t, store, nil)
	c := gateway.NewClient("c1", nil, 16)

	handle(t, s, c, loginFrame(t, "tok-alice", "mobile"))

	// 目录写不进去就不许在线，不能留半注册连接
	require.True(t, c.IsClosed())
	require.Equal(t, []int{gateway.CodeRegisterFailed}, drainCodes(t, c))
	require.Equal(t, 0, s.Reg().Len())
}

func TestLoginCrossNodeSessionTriggersKickBroadcast(t *testing.T) {
	store := newFakeStore()
	store.sessions["u-tok-alice"] = &global.UserSession{UserId: "u-tok-alice", BrokerId: "node-b"}
	kicker := &fakeKicker{}
	s := testServer(t, store, func(cfg *global.AppConfig) {
		cfg.MultiDevice = false
	})
	s.SetKicker(kicker)

	c := gateway.NewClient("c1", nil, 16)
	handle(t, s, c, loginFrame(t, "tok-alice", "mobile"))

	require.False(t, c.IsClosed())
	require.Len(t, kicker.kicks, 1)
	require.Equal(t, "u-tok-alice", kicker.kicks[0].userId)
}

// ---- 心跳 ----

func heartbeatFrame(t *testing.T) *gateway.Envelope {
	t.Helper()
	env, err := gateway.NewEnvelope(gateway.CodeHeartbeat, &gateway.HeartbeatPayload{})
	require.NoError(t, err)
	return env
}

func TestHeartbeatBeforeLoginCloses(t *testing.T) {
	s := testServer(t, newFakeStore(), nil)
	c := gateway.NewClient("c1", nil, 16)

	handle(t, s, c, heartbeatFrame(t))

	require.True(t, c.IsClosed())
	require.Equal(t, []int{gateway.CodeNotLogin}, drainCodes(t, c))
}

func TestHeartbeatAcksAndCoalesces(t *testing.T) {
	s := testServer(t, newFakeStore(), nil)
	c := gateway.NewClient("c1", nil, 16)
	handle(t, s, c, loginFrame(t, "tok-alice", "mobile"))
	drainCodes(t, c)

	handle(t, s, c, heartbeatFrame(t))
	handle(t, s, c, heartbeatFrame(t))

	require.Equal(t, []int{gateway.CodeHeartbeatSuccess, gateway.CodeHeartbeatSuccess}, drainCodes(t, c))
	// 两次心跳合并成一条待续期记录
	require.Equal(t, 1, s.Renewal().TouchedCount())
}

func TestHeartbeatNearExpiryAsksRefresh(t *testing.T) {
	s := testServer(t, newFakeStore(), nil)
	c := gateway.NewClient("c1", nil, 16)
	handle(t, s, c, loginFrame(t, "tok-weary", "mobile"))
	drainCodes(t, c)

	handle(t, s, c, heartbeatFrame(t))

	require.Equal(t, []int{gateway.CodeRefreshToken}, drainCodes(t, c))
	require.False(t, c.IsClosed())
}

// ---- 消息 ----

func TestSingleMessageRequiresLogin(t *testing.T) {
	s := testServer(t, newFakeStore(), nil)
	c := gateway.NewClient("c1", nil, 16)

	env, err := gateway.NewEnvelope(gateway.CodeSingleMessage,
		&gateway.SingleMessage{FromId: "x", ToId: "y"})
	require.NoError(t, err)
	handle(t, s, c, env)

	require.True(t, c.IsClosed())
	require.Equal(t, []int{gateway.CodeNotLogin}, drainCodes(t, c))
}

func TestSingleMessageDeliveredLocally(t *testing.T) {
	s := testServer(t, newFakeStore(), nil)
	alice := gateway.NewClient("ca", nil, 16)
	handle(t, s, alice, loginFrame(t, "tok-alice", "mobile"))
	drainCodes(t, alice)
	bob := gateway.NewClient("cb", nil, 16)
	handle(t, s, bob, loginFrame(t, "tok-bob", "mobile"))
	drainCodes(t, bob)

	env, err := gateway.NewEnvelope(gateway.CodeSingleMessage,
		&gateway.SingleMessage{FromId: "u-tok-alice", ToId: "u-tok-bob", Body: "hi"})
	require.NoError(t, err)
	handle(t, s, alice, env)

	require.Equal(t, []int{gateway.CodeSingleMessage}, drainCodes(t, bob))

	// 发送端回执带投递统计
	raw := <-alice.Outbox()
	ack, derr := gateway.Decode(raw)
	require.NoError(t, derr)
	require.Equal(t, gateway.CodeSuccess, ack.Code)
	require.Equal(t, "1", ack.Metadata["delivered"])
	require.Equal(t, "0", ack.Metadata["undeliverable"])
}

func TestVideoMessageJoinsRoom(t *testing.T) {
	s := testServer(t, newFakeStore(), nil)
	alice := gateway.NewClient("ca", nil, 16)
	handle(t, s, alice, loginFrame(t, "tok-alice", "mobile"))
	drainCodes(t, alice)

	env, err := gateway.NewEnvelope(gateway.CodeVideoMessage,
		&gateway.VideoMessage{FromId: "u-tok-alice", ToId: "u-tok-bob", Type: "offer"})
	require.NoError(t, err)
	env.Metadata = map[string]string{"room_id": "room-7"}
	handle(t, s, alice, env)

	roomId, rest := s.Rooms().Leave(alice)
	require.Equal(t, "room-7", roomId)
	require.Empty(t, rest)
}

// ---- 登出 ----

func TestLogoutRemovesSession(t *testing.T) {
	store := newFakeStore()
	s := testServer(t, store, nil)
	c := gateway.NewClient("c1", nil, 16)
	handle(t, s, c, loginFrame(t, "tok-alice", "mobile"))
	drainCodes(t, c)

	env, err := gateway.NewEnvelope(gateway.CodeLogout, nil)
	require.NoError(t, err)
	handle(t, s, c, env)

	require.True(t, c.IsClosed())
	require.Equal(t, 0, s.Reg().Len())
	// 目录清理走工作池，异步收敛
	require.Eventually(t, func() bool {
		sess, _ := store.Load(context.Background(), "u-tok-alice")
		return sess == nil
	}, time.Second, 10*time.Millisecond)
}
