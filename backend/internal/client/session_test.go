package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"collabEngine/backend/internal/cache"
	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/ot/delta"
	"collabEngine/backend/internal/ws"
)

// fakeRelay 是一个最小中继：收到 JOIN 回一条带花名册的 JOIN 确认，
// 其余入站消息进 received 供断言；push 里的消息原样写给客户端。
// 所有写操作都走单一写协程，避免并发写同一条连接。
type fakeRelay struct {
	srv      *httptest.Server
	ackJoin  bool
	push     chan ws.Envelope
	received chan ws.Envelope
	joins    chan ws.Envelope
	conns    chan *websocket.Conn
	hangups  chan struct{}
}

func newFakeRelay(t *testing.T, ackJoin bool) *fakeRelay {
	t.Helper()
	r := &fakeRelay{
		ackJoin:  ackJoin,
		push:     make(chan ws.Envelope, 16),
		received: make(chan ws.Envelope, 16),
		joins:    make(chan ws.Envelope, 16),
		conns:    make(chan *websocket.Conn, 4),
		hangups:  make(chan struct{}, 4),
	}
	upgrader := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		select {
		case r.conns <- conn:
		default:
		}

		done := make(chan struct{})
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case env := <-r.push:
					_ = conn.WriteJSON(env)
				case <-done:
					return
				}
			}
		}()
		// 先等写协程退出再宣告挂断：下一条连接的写协程不会和它抢 push
		defer func() {
			close(done)
			<-writerDone
			select {
			case r.hangups <- struct{}{}:
			default:
			}
		}()

		for {
			var env ws.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Type == ws.MsgJoin {
				select {
				case r.joins <- env:
				default:
				}
				if r.ackJoin {
					roster := []cache.OnlineUser{{UserID: env.UserID, Username: "tester", Color: "#f44336"}}
					ack, err := ws.NewEnvelope(ws.MsgJoin, env.DocumentID, env.UserID, roster)
					if err == nil {
						r.push <- ack
					}
				}
				continue
			}
			select {
			case r.received <- env:
			default:
			}
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func waitJoin(t *testing.T, r *fakeRelay) ws.Envelope {
	t.Helper()
	select {
	case env := <-r.joins:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("中继没有收到 JOIN")
		return ws.Envelope{}
	}
}

func waitHangup(t *testing.T, r *fakeRelay) {
	t.Helper()
	select {
	case <-r.hangups:
	case <-time.After(2 * time.Second):
		t.Fatal("中继侧连接没有挂断")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for: %s", msg)
}

func TestSession_ConnectAndLeave(t *testing.T) {
	relay := newFakeRelay(t, true)
	s := NewSession(relay.url(), 7, 1, "", 1)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := s.State(); got != StateActive {
		t.Fatalf("State() = %v, want ACTIVE", got)
	}
	roster := s.Roster()
	if len(roster) != 1 || roster[0].UserID != 1 {
		t.Fatalf("Roster() = %+v, want 自己一人", roster)
	}

	// 重复 Connect 直接返回
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("重复 Connect() error = %v", err)
	}

	if err := s.Leave(); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if got := s.State(); got != StateLeft {
		t.Fatalf("State() = %v, want LEFT", got)
	}
	// Leave 幂等
	if err := s.Leave(); err != nil {
		t.Fatalf("重复 Leave() error = %v", err)
	}
}

func TestSession_JoinTimeout(t *testing.T) {
	relay := newFakeRelay(t, false) // 永不确认
	s := NewSession(relay.url(), 7, 1, "", 1)

	err := s.Connect(context.Background())
	if !errors.Is(err, ErrJoinTimeout) {
		t.Fatalf("Connect() error = %v, want ErrJoinTimeout", err)
	}
	if got := s.State(); got != StateDisconnected {
		t.Fatalf("State() = %v, want DISCONNECTED", got)
	}
}

func TestSession_EditDerivesAndSends(t *testing.T) {
	relay := newFakeRelay(t, true)
	s := NewSession(relay.url(), 7, 1, "", 1)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := s.Edit(delta.Delta{{Kind: delta.KindInsert, Text: "Hi"}}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if got := s.Text(); got != "Hi" {
		t.Fatalf("Text() = %q, want %q", got, "Hi")
	}

	select {
	case env := <-relay.received:
		if env.Type != ws.MsgOperation {
			t.Fatalf("中继收到 %s，want OPERATION", env.Type)
		}
		op, err := env.Operation()
		if err != nil {
			t.Fatalf("Operation() error = %v", err)
		}
		if op.Type != collab.OpInsert || op.Position != 0 || op.Data != "Hi" {
			t.Fatalf("op = %+v", op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("中继没有收到派生操作")
	}
}

func TestSession_RemoteOperationApplied(t *testing.T) {
	relay := newFakeRelay(t, true)
	s := NewSession(relay.url(), 7, 1, "world", 1)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	env, err := ws.NewEnvelope(ws.MsgOperation, 7, 2, collab.Operation{Type: collab.OpInsert, Position: 0, Data: "Hello "})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	relay.push <- env

	waitFor(t, func() bool { return s.Text() == "Hello world" }, "远端插入被应用")
}

// 服务端已排除发送方，客户端再按 userId 过滤一次：
// 带自己 userId 的操作不能二次应用
func TestSession_SelfEchoFiltered(t *testing.T) {
	relay := newFakeRelay(t, true)
	s := NewSession(relay.url(), 7, 1, "abc", 1)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	selfEcho, err := ws.NewEnvelope(ws.MsgOperation, 7, 1, collab.Operation{Type: collab.OpInsert, Position: 0, Data: "X"})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	marker, err := ws.NewEnvelope(ws.MsgOperation, 7, 2, collab.Operation{Type: collab.OpInsert, Position: 0, Data: "M"})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	// 处理按到达顺序：等到 marker 生效即可断言自回声被丢弃
	relay.push <- selfEcho
	relay.push <- marker

	waitFor(t, func() bool { return s.Text() == "Mabc" }, "marker 操作生效")
	if got := s.Text(); strings.Contains(got, "X") {
		t.Fatalf("自回声被应用了: %q", got)
	}
}

func TestSession_DocumentUpdatedReplacesContent(t *testing.T) {
	relay := newFakeRelay(t, true)
	s := NewSession(relay.url(), 7, 1, "old", 2)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	env, err := ws.NewEnvelope(ws.MsgDocumentUpdated, 7, 0, ws.DocumentUpdate{Content: "rolled back", Version: 6})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	relay.push <- env

	waitFor(t, func() bool { return s.Text() == "rolled back" && s.Version() == 6 }, "整体替换生效")
}

// 主动离开后重连：完整走一遍 JOIN 序列，旧会话的状态整体作废
func TestSession_ReconnectAfterLeave(t *testing.T) {
	relay := newFakeRelay(t, true)
	s := NewSession(relay.url(), 7, 1, "", 1)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitJoin(t, relay)

	if err := s.Leave(); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	waitHangup(t, relay)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("重连 Connect() error = %v", err)
	}
	if got := s.State(); got != StateActive {
		t.Fatalf("重连后 State() = %v, want ACTIVE", got)
	}
	// 重连宣告了一次、也只宣告了一次新 JOIN
	waitJoin(t, relay)
	select {
	case extra := <-relay.joins:
		t.Fatalf("多余的 JOIN 宣告: %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
	// 花名册来自新确认，不含旧会话残留
	roster := s.Roster()
	if len(roster) != 1 || roster[0].UserID != 1 {
		t.Fatalf("重连后 Roster() = %+v, want 自己一人", roster)
	}
}

// 传输层被对端掐断：会话进入 LEFT，重连走完整 Connect 且远端操作只应用一次
func TestSession_ReconnectAfterTransportDrop(t *testing.T) {
	relay := newFakeRelay(t, true)
	s := NewSession(relay.url(), 7, 1, "seed", 1)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	srvConn := <-relay.conns
	waitJoin(t, relay)

	_ = srvConn.Close()
	waitFor(t, func() bool { return s.State() == StateLeft }, "传输断开后进入 LEFT")
	waitHangup(t, relay)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("重连 Connect() error = %v", err)
	}
	if got := s.State(); got != StateActive {
		t.Fatalf("重连后 State() = %v, want ACTIVE", got)
	}
	waitJoin(t, relay)

	// 新订阅生效且只有一份：操作恰好应用一次（旧订阅已随旧连接整体失效）
	env, err := ws.NewEnvelope(ws.MsgOperation, 7, 2, collab.Operation{Type: collab.OpInsert, Position: 0, Data: "X"})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	relay.push <- env
	waitFor(t, func() bool { return s.Text() == "Xseed" }, "重连后的远端操作应用一次")
}

func TestSession_EditBeforeActive(t *testing.T) {
	s := NewSession("ws://127.0.0.1:0", 7, 1, "", 1)
	if err := s.Edit(delta.Delta{{Kind: delta.KindInsert, Text: "x"}}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("Edit() error = %v, want ErrNotActive", err)
	}
	if err := s.MoveCursor(3); !errors.Is(err, ErrNotActive) {
		t.Fatalf("MoveCursor() error = %v, want ErrNotActive", err)
	}
}
