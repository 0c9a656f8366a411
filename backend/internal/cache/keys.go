package cache

import "fmt"

// 键语义：
// - roomKey(docID):   房间在线成员（ZSet<userId, expireAtUnix>，score=过期时刻）
// - namesKey(docID):  房间内 userId→username 映射（Hash）
// - cursorKey(...):   某用户在某文档内的光标位置（String，自带 TTL）
const (
	keyRoomFmt   = "presence:room:{doc:%d}"
	keyNamesFmt  = "presence:room:names:{doc:%d}"
	keyCursorFmt = "presence:cursor:%d:%d"
)

func roomKey(docID uint64) string  { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID uint64) string { return fmt.Sprintf(keyNamesFmt, docID) }
func cursorKey(docID, userID uint64) string {
	return fmt.Sprintf(keyCursorFmt, docID, userID)
}
