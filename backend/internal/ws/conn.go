package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"

	"collabEngine/backend/internal/collab"
)

const (
	// 花名册里的逻辑 TTL；每次 JOIN / 光标上报都会刷新
	presenceTTL = 10 * time.Minute
	// 光标键自己的 TTL，和原有协议一致取 5 分钟
	cursorTTL = 5 * time.Minute
	// 单条操作处理的时间上限（信号量获取 + 入队）
	opTimeout = 200 * time.Millisecond
)

// Conn 是一个已升级的客户端连接。
// 每条连接有独立的 session id（ksuid）：重连产生新 Conn，
// 旧连接在 readLoop 退出时被整体清理，不会遗留半注册状态。
type Conn struct {
	ws        *websocket.Conn
	hub       *Hub
	sessionID string
	docID     uint64
	userID    uint64
	username  string

	// sendMu 保护 closed 与向 send 的写入：广播方可能在房间快照之后、
	// 入队之前被连接清理超车，不能撞上已关闭的通道
	sendMu sync.Mutex
	closed bool
	send   chan Envelope

	dispatcher *collab.KafkaDispatcher
	sem        *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, dispatcher *collab.KafkaDispatcher, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:         ws,
		hub:        hub,
		sessionID:  ksuid.New().String(),
		userID:     userID,
		username:   username,
		send:       make(chan Envelope, 32),
		dispatcher: dispatcher,
		sem:        sem,
	}
}

// Enqueue 把出站消息放入发送队列；队列满或连接已关则丢弃（慢客户端不拖慢房间）。
func (c *Conn) Enqueue(msg Envelope) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// shutdown 关闭发送队列并让 writeLoop 退出；之后的 Enqueue 直接丢弃。
func (c *Conn) shutdown() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.shutdown()
	// 传输层断开等同 LEAVE
	defer c.leaveRoom(context.Background())

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			log.Printf("read json error (user=%d, doc=%d, session=%s): %v", c.userID, c.docID, c.sessionID, err)
			return
		}

		switch env.Type {
		case MsgJoin:
			c.handleJoin(ctx, env)

		case MsgLeave:
			c.leaveRoom(ctx)

		case MsgOperation:
			c.handleOperation(ctx, env)

		case MsgCursor:
			c.handleCursor(ctx, env)

		default:
			// 未知类型只记日志，协议错误永远不中断会话
			log.Printf("ignore unknown message type %q (user=%d, session=%s)", env.Type, c.userID, c.sessionID)
		}
	}
}

// handleJoin 让连接进入 env.DocumentID 的房间。
// 换房间时先离开旧房间；JOIN 广播附带权威花名册，
// 其他客户端以它为准刷新，而不是增量地相信 join 负载。
func (c *Conn) handleJoin(ctx context.Context, env Envelope) {
	docID := env.DocumentID
	if docID == 0 {
		log.Printf("join without documentId (user=%d)", c.userID)
		return
	}
	if c.docID != 0 && c.docID != docID {
		c.leaveRoom(ctx)
	}
	c.docID = docID

	c.hub.Join(docID, c)
	if err := c.hub.presence.AddMember(ctx, docID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("presence add error (user=%d, doc=%d): %v", c.userID, docID, err)
	}

	roster, err := c.hub.presence.Roster(ctx, docID)
	if err != nil {
		log.Printf("roster error (doc=%d): %v", docID, err)
	}

	msg, err := NewEnvelope(MsgJoin, docID, c.userID, roster)
	if err != nil {
		log.Printf("encode join error: %v", err)
		return
	}
	// 加入者直接收到一份（作为 join 确认），其他成员收广播
	c.Enqueue(msg)
	c.hub.Broadcast(docID, msg, c)
}

// leaveRoom 是幂等的：未加入、重复离开都直接返回。
func (c *Conn) leaveRoom(ctx context.Context) {
	docID := c.docID
	if docID == 0 {
		return
	}
	c.docID = 0

	c.hub.Leave(docID, c)
	if err := c.hub.presence.RemoveMember(ctx, docID, c.userID); err != nil {
		log.Printf("presence remove error (user=%d, doc=%d): %v", c.userID, docID, err)
	}

	roster, err := c.hub.presence.Roster(ctx, docID)
	if err != nil {
		log.Printf("roster error (doc=%d): %v", docID, err)
	}
	msg, err := NewEnvelope(MsgLeave, docID, c.userID, roster)
	if err != nil {
		log.Printf("encode leave error: %v", err)
		return
	}
	c.hub.Broadcast(docID, msg, c)
}

// handleOperation 原样转发一条编辑操作。
// 中继是哑的：不校验版本、不做变换、不重排；
// 只解码确认负载形状合法，然后按到达顺序广播给房间内其他连接。
func (c *Conn) handleOperation(ctx context.Context, env Envelope) {
	if c.docID == 0 || env.DocumentID != c.docID {
		log.Printf("operation outside joined room (user=%d, doc=%d)", c.userID, env.DocumentID)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.sem.Acquire(opCtx); err != nil {
		log.Printf("operation backpressure (user=%d, doc=%d): %v", c.userID, c.docID, err)
		return
	}
	defer c.sem.Release()

	op, err := env.Operation()
	if err != nil {
		// 协议错误：记日志丢弃，不回错给发送方
		log.Printf("malformed operation (user=%d, doc=%d): %v", c.userID, c.docID, err)
		return
	}

	env.UserID = c.userID // 发送方身份以连接为准，不信任负载里的 userId
	c.hub.Broadcast(c.docID, env, c)

	if c.dispatcher != nil {
		evt := collab.OperationRelayed{
			EventType:  "OP_RELAYED",
			DocumentID: c.docID,
			UserID:     c.userID,
			Operation:  op,
			RelayedAt:  time.Now(),
		}
		if err := c.dispatcher.Enqueue(opCtx, evt); err != nil {
			// 审计事件允许丢，不影响转发主链路
			log.Printf("audit enqueue dropped (doc=%d, op=%s): %v", c.docID, op.ID, err)
		}
	}
}

func (c *Conn) handleCursor(ctx context.Context, env Envelope) {
	if c.docID == 0 || env.DocumentID != c.docID {
		return
	}
	cur, err := env.Cursor()
	if err != nil {
		log.Printf("malformed cursor (user=%d): %v", c.userID, err)
		return
	}
	if err := c.hub.presence.SetCursor(ctx, c.docID, c.userID, cur.Position, cursorTTL); err != nil {
		log.Printf("cursor save error (user=%d, doc=%d): %v", c.userID, c.docID, err)
	}
	// 光标顺带当心跳用，刷新花名册 TTL
	if err := c.hub.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("presence refresh error (user=%d, doc=%d): %v", c.userID, c.docID, err)
	}

	env.UserID = c.userID
	c.hub.Broadcast(c.docID, env, c)
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
