package storage

import (
	"context"
	"encoding/json"
	"time"

	"IMProject/global"
	redis2 "IMProject/service/storage/redis"
	errs "IMProject/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// SessionStore 会话目录客户端：每个在线用户一条分布式会话记录，
// 由登录写入、批量续期协程刷新、下线或 TTL 到期删除。
type SessionStore struct {
	rdb redis.Cmdable
}

func NewSessionStore() *SessionStore {
	return &SessionStore{rdb: redis2.GetRedis()}
}

// NewSessionStoreWith 可注入客户端（单测注入用）
func NewSessionStoreWith(rdb redis.Cmdable) *SessionStore {
	return &SessionStore{rdb: rdb}
}

// Save 写入会话记录。本地注册表与目录写入是两次操作，不做分布式事务；
// 进程在两者之间崩溃时靠目录自身 TTL 到期自愈。
func (s *SessionStore) Save(ctx context.Context, sess *global.UserSession, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return errs.ErrDependency.WrapMsg("marshal session", "user", sess.UserId)
	}
	if err := s.rdb.Set(ctx, global.SessionKey(sess.UserId), raw, ttl).Err(); err != nil {
		return errs.ErrDependency.WrapMsg(err.Error(), "user", sess.UserId)
	}
	return nil
}

// Load 读取会话记录；不存在返回 (nil, nil)
func (s *SessionStore) Load(ctx context.Context, userId string) (*global.UserSession, error) {
	raw, err := s.rdb.Get(ctx, global.SessionKey(userId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg(err.Error(), "user", userId)
	}
	var sess global.UserSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, errs.ErrDependency.WrapMsg("bad session record", "user", userId)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, userId string) error {
	if err := s.rdb.Del(ctx, global.SessionKey(userId)).Err(); err != nil {
		return errs.ErrDependency.WrapMsg(err.Error(), "user", userId)
	}
	return nil
}

// ExtendTTL 批量续期：一个 pipeline 覆盖一个 tick 内被心跳触达的全部用户，
// 把目录写入量从每心跳一次压到每 tick 一次。
func (s *SessionStore) ExtendTTL(ctx context.Context, userIds []string, ttl time.Duration) error {
	if len(userIds) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	for _, uid := range userIds {
		pipe.Expire(ctx, global.SessionKey(uid), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.ErrDependency.WrapMsg(err.Error(), "users", len(userIds))
	}
	return nil
}

// MarkActive 日活记录：HyperLogLog，重复无所谓
func (s *SessionStore) MarkActive(ctx context.Context, userId string) error {
	return s.rdb.PFAdd(ctx, global.ActiveUsersKey(time.Now()), userId).Err()
}
