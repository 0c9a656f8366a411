package ws

import (
	"sync"

	"collabEngine/backend/internal/cache"
)

// Hub 持有所有文档房间。房间存连接而不是 userId：
// 一个用户可以开多个标签页/设备，广播要逐连接投递。
// 这是被多个发送方并发改动的唯一共享状态，所有变更都在锁内完成。
type Hub struct {
	presence cache.PresenceCache
	mu       sync.RWMutex
	// docID -> set of connections
	rooms map[uint64]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[uint64]map[*Conn]struct{})}
}

func (h *Hub) Presence() cache.PresenceCache { return h.presence }

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID uint64, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除；从未加入或重复调用都无害
func (h *Hub) Leave(docID uint64, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// RoomSize 返回房间当前连接数
func (h *Hub) RoomSize(docID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// Broadcast 把消息原样投递给房间内 exclude 以外的所有连接。
// 中继不解释、不变换、不重排消息；投递顺序就是到达顺序。
// exclude 传发送方连接即服务端侧的自过滤；传 nil 则全员投递。
func (h *Hub) Broadcast(docID uint64, msg Envelope, exclude *Conn) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != exclude {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Enqueue(msg)
	}
}
