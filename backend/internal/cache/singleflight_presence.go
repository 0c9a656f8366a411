package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// singleflightPresence 在 PresenceCache 外面套一层读去重：
// JOIN/LEAVE/在线列表接口都会触发 Roster，同一文档的并发读合并成一次
// Redis 往返（包括那段 Lua 清理脚本），写路径原样透传。
type singleflightPresence struct {
	PresenceCache
	sf singleflight.Group
}

func NewSingleflightPresence(inner PresenceCache) PresenceCache {
	return &singleflightPresence{PresenceCache: inner}
}

func (p *singleflightPresence) Roster(ctx context.Context, docID uint64) ([]OnlineUser, error) {
	v, err, _ := p.sf.Do(roomKey(docID), func() (any, error) {
		return p.PresenceCache.Roster(ctx, docID)
	})
	if err != nil {
		return nil, err
	}
	users, _ := v.([]OnlineUser)
	return users, nil
}
