package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// OnlineUser 是房间花名册里的一项。
// 以 userId 为键：同一用户重连只会刷新，不会出现重复项。
type OnlineUser struct {
	UserID         uint64 `json:"userId"`
	Username       string `json:"username"`
	Nickname       string `json:"nickname,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	CursorPosition *int   `json:"cursorPosition,omitempty"`
	Color          string `json:"color"`
}

type PresenceCache interface {
	AddMember(ctx context.Context, docID, userID uint64, username string, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID, userID uint64) error
	Roster(ctx context.Context, docID uint64) ([]OnlineUser, error)
	SetCursor(ctx context.Context, docID, userID uint64, position int, ttl time.Duration) error
}

// 光标颜色调色板：按 userId 取模，所有端看到的同一用户颜色一致
var cursorPalette = []string{
	"#f56a00", "#7265e6", "#ffbf00", "#00a2ae",
	"#f5222d", "#52c41a", "#1890ff", "#eb2f96",
}

func ColorFor(userID uint64) string {
	return cursorPalette[userID%uint64(len(cursorPalette))]
}

type redisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// AddMember 把用户写入房间花名册；刷新 TTL 也走这里。
// ZADD + HSET 放在同一个事务 pipeline 里，两个并发 JOIN 互不丢失。
func (p *redisPresence) AddMember(ctx context.Context, docID, userID uint64, username string, ttl time.Duration) error {
	tx := p.rdb.TxPipeline()
	// score 存 expireAt（Unix 秒），表达“逻辑 TTL”
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey(docID), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(docID), userID, username)
	_, err := tx.Exec(ctx)
	return err
}

// RemoveMember 立即把用户移出花名册并清掉光标；重复调用无害。
func (p *redisPresence) RemoveMember(ctx context.Context, docID, userID uint64) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(docID), userID)
	tx.HDel(ctx, namesKey(docID), strconv.FormatUint(userID, 10))
	tx.Del(ctx, cursorKey(docID, userID))
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) SetCursor(ctx context.Context, docID, userID uint64, position int, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(docID, userID), position, ttl).Err()
}

// Roster 返回当前在线成员（带名字、光标、颜色）。
// step1 先用 Lua 原子清理过期成员，step2/3 再读活跃成员和名字表。
func (p *redisPresence) Roster(ctx context.Context, docID uint64) ([]OnlineUser, error) {
	now := time.Now().Unix()
	luaScript := `
	-- KEYS[1] = roomKey(docID)
	-- KEYS[2] = namesKey(docID)
	-- ARGV[1] = now (unix seconds)

	local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	if #expired > 0 then
		redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
		redis.call("HDEL", KEYS[2], unpack(expired))
	end
	return #expired
	`

	script := redis.NewScript(luaScript)
	_, err := script.Run(ctx, p.rdb, []string{roomKey(docID), namesKey(docID)}, now).Int()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(docID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(docID), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	users := make([]OnlineUser, 0, len(aliveIDs))
	for i, idStr := range aliveIDs {
		uid, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		name := ""
		if i < len(names) && names[i] != nil {
			name, _ = names[i].(string)
		}
		u := OnlineUser{UserID: uid, Username: name, Color: ColorFor(uid)}

		// 光标是独立键，取不到就留空（key 过期了或从未上报）
		if cur, err := p.rdb.Get(ctx, cursorKey(docID, uid)).Int(); err == nil {
			pos := cur
			u.CursorPosition = &pos
		}
		users = append(users, u)
	}
	return users, nil
}
