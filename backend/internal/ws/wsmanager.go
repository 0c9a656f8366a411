package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"collabEngine/backend/internal/collab"
)

// 全局的 WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub        *Hub
	dispatcher *collab.KafkaDispatcher
	sem        *collab.SemaphoreControl
}

func NewManager(hub *Hub, dispatcher *collab.KafkaDispatcher, sem *collab.SemaphoreControl) *Manager {
	return &Manager{hub: hub, dispatcher: dispatcher, sem: sem}
}

// WebSocketConnect 把一个经过鉴权的 HTTP 请求升级成协作连接。
// userId/username 已由鉴权中间件写入 gin 上下文。
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, userID, username, m.dispatcher, m.sem)

	// 先起写循环，保证后续写入 send 的消息都能被发出去
	go wsConn.writeLoop()

	// 读循环阻塞到连接关闭；退出时自动执行 LEAVE 清理
	wsConn.readLoop(c.Request.Context())
}
