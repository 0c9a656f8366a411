package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"

	"collabEngine/backend/internal/cache"
	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/ot/delta"
	"collabEngine/backend/internal/ws"
)

// State 是 (用户, 文档) 会话的生命周期状态。
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
	StateActive
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateJoined:
		return "JOINED"
	case StateActive:
		return "ACTIVE"
	case StateLeft:
		return "LEFT"
	default:
		return "DISCONNECTED"
	}
}

var (
	// ErrJoinTimeout：限次等待内没有收到 join 确认，向调用方报告加入失败而不是静默挂起
	ErrJoinTimeout = errors.New("JOIN_TIMEOUT")
	ErrNotActive   = errors.New("SESSION_NOT_ACTIVE")
)

const (
	joinPollInterval = 100 * time.Millisecond
	joinMaxAttempts  = 10
)

// Session 是单个参与者的同步端：
// 拨号、订阅先行、宣告 JOIN、把本地编辑派生成操作发出，
// 把远端操作夹紧后应用到本地缓冲区。
// 重连走完整的 Connect 流程，每次连接换新的 session id，
// 上一条连接的状态（join 确认、花名册）整体作废，不会重复注册。
type Session struct {
	url        string
	documentID uint64
	userID     uint64

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	sessionID string
	editor    *collab.Editor
	roster    []cache.OnlineUser
	cursors   map[uint64]int

	joinAck  chan struct{}
	joinOnce *sync.Once
}

func NewSession(url string, documentID, userID uint64, content string, version uint64) *Session {
	return &Session{
		url:        url,
		documentID: documentID,
		userID:     userID,
		state:      StateDisconnected,
		editor:     collab.NewEditor(content, version),
		cursors:    make(map[uint64]int),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.String()
}

func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Version()
}

func (s *Session) Roster() []cache.OnlineUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cache.OnlineUser, len(s.roster))
	copy(out, s.roster)
	return out
}

// Connect 执行完整的加入序列：
// 握手 → 起读循环（订阅必须先于 JOIN 宣告，否则会错过自己触发的花名册刷新）
// → 发送 JOIN → 限次轮询等待确认（~100ms x 10），超时返回 ErrJoinTimeout。
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateJoined || s.state == StateActive {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.sessionID = ksuid.New().String()
	s.roster = nil
	s.cursors = make(map[uint64]int)
	s.joinAck = make(chan struct{})
	s.joinOnce = &sync.Once{}
	s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	joinAck := s.joinAck
	s.mu.Unlock()

	go s.readLoop(conn)

	if err := s.send(ws.MsgJoin, nil); err != nil {
		s.teardown(conn)
		return fmt.Errorf("announce join: %w", err)
	}

	for attempt := 0; attempt < joinMaxAttempts; attempt++ {
		select {
		case <-joinAck:
			// handle() 在收到确认时已置 JOINED，这里转入稳定收发的 ACTIVE
			s.mu.Lock()
			s.state = StateActive
			s.mu.Unlock()
			return nil
		case <-ctx.Done():
			s.teardown(conn)
			return ctx.Err()
		case <-time.After(joinPollInterval):
		}
	}

	s.teardown(conn)
	return ErrJoinTimeout
}

// Leave 幂等：未加入或已离开时什么也不做。
func (s *Session) Leave() error {
	s.mu.Lock()
	if s.state != StateJoined && s.state != StateActive {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.state = StateLeft
	s.mu.Unlock()

	env, err := ws.NewEnvelope(ws.MsgLeave, s.documentID, s.userID, nil)
	if err == nil {
		s.mu.Lock()
		_ = conn.WriteJSON(env)
		s.mu.Unlock()
	}
	return conn.Close()
}

// Edit 把一次本地编辑应用到缓冲区并把派生操作逐条发往房间。
func (s *Session) Edit(d delta.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrNotActive
	}
	ops, err := s.editor.ApplyDelta(d, collab.OriginLocal)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := s.sendLocked(ws.MsgOperation, op); err != nil {
			return err
		}
	}
	return nil
}

// MoveCursor 上报本地光标位置。
func (s *Session) MoveCursor(position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrNotActive
	}
	return s.sendLocked(ws.MsgCursor, ws.CursorData{Position: position})
}

func (s *Session) send(t ws.MessageType, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(t, data)
}

func (s *Session) sendLocked(t ws.MessageType, data any) error {
	env, err := ws.NewEnvelope(t, s.documentID, s.userID, data)
	if err != nil {
		return err
	}
	return s.conn.WriteJSON(env)
}

func (s *Session) teardown(conn *websocket.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		var env ws.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.mu.Lock()
			// 只有当前代的连接才能改状态；上一条连接的读循环晚退出时不许插手
			if s.conn == conn {
				switch s.state {
				case StateJoined, StateActive:
					// 已加入后传输层断开等同 LEAVE；重新参加要走完整的 Connect 序列
					s.state = StateLeft
				case StateConnecting:
					// join 还没完成就断了，交给 Connect 的超时/teardown 收尾
					s.state = StateDisconnected
				}
			}
			s.mu.Unlock()
			return
		}
		s.handle(conn, env)
	}
}

// handle 按信封类型分派。所有可恢复的问题（协议错误、越界、
// 未知类型）都在这里吸收：记日志、丢弃，绝不中断会话。
// 来自上一条连接的残留消息直接丢弃：重连后旧订阅整体作废，不许二次注册。
func (s *Session) handle(conn *websocket.Conn, env ws.Envelope) {
	s.mu.Lock()
	stale := s.conn != conn
	s.mu.Unlock()
	if stale {
		return
	}
	if env.DocumentID != s.documentID {
		return
	}

	switch env.Type {
	case ws.MsgJoin:
		roster, err := env.Roster()
		if err != nil {
			log.Printf("malformed join roster (doc=%d): %v", env.DocumentID, err)
			return
		}
		s.mu.Lock()
		// 以服务端附带的权威花名册为准，而不是增量相信 join 负载
		s.roster = roster
		joinOnce := s.joinOnce
		joinAck := s.joinAck
		if env.UserID == s.userID && s.state == StateConnecting {
			s.state = StateJoined
		}
		s.mu.Unlock()
		if env.UserID == s.userID && joinOnce != nil {
			joinOnce.Do(func() { close(joinAck) })
		}

	case ws.MsgLeave:
		roster, err := env.Roster()
		if err != nil {
			log.Printf("malformed leave roster (doc=%d): %v", env.DocumentID, err)
			return
		}
		s.mu.Lock()
		s.roster = roster
		delete(s.cursors, env.UserID)
		s.mu.Unlock()

	case ws.MsgOperation:
		// 最低限度的自过滤：服务端已排除发送方，这里再按 userId 核对一次
		if env.UserID == s.userID {
			return
		}
		op, err := env.Operation()
		if err != nil {
			log.Printf("malformed remote operation (doc=%d): %v", env.DocumentID, err)
			return
		}
		s.mu.Lock()
		// 远端来源：只应用、不派生，应用完即恢复，无定时器参与
		if err := s.editor.ApplyOperation(op); err != nil {
			log.Printf("drop remote operation (doc=%d, op=%s): %v", env.DocumentID, op.ID, err)
		}
		s.mu.Unlock()

	case ws.MsgCursor:
		if env.UserID == s.userID {
			return
		}
		cur, err := env.Cursor()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.cursors[env.UserID] = cur.Position
		s.mu.Unlock()

	case ws.MsgDocumentUpdated:
		u, err := env.DocumentUpdate()
		if err != nil {
			log.Printf("malformed document update (doc=%d): %v", env.DocumentID, err)
			return
		}
		s.mu.Lock()
		// programmatic 替换：不派生操作，格式账本清零
		s.editor.SetContent(u.Content, u.Version)
		s.mu.Unlock()

	case ws.MsgComment, ws.MsgCommentUpdated, ws.MsgCommentDeleted:
		// 评论变动由上层 UI 拉取刷新，这里无本地状态要改

	default:
		log.Printf("ignore unknown message type %q (doc=%d)", env.Type, env.DocumentID)
	}
}
