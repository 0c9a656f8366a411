package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"collabEngine/backend/internal/store"
	"collabEngine/backend/internal/ws"
)

// Handlers 聚合 REST 入口的依赖。
// 保存/回滚/评论走 HTTP，不走操作通道；它们改动持久化状态后
// 通过 hub 向房间推送 DOCUMENT_UPDATED / COMMENT* 通知。
type Handlers struct {
	documents *store.DocumentStore
	versions  *store.VersionStore
	comments  *store.CommentStore
	hub       *ws.Hub
}

func New(documents *store.DocumentStore, versions *store.VersionStore, comments *store.CommentStore, hub *ws.Hub) *Handlers {
	return &Handlers{documents: documents, versions: versions, comments: comments, hub: hub}
}

// Register 挂载路由；调用方负责在外层套鉴权中间件。
func (h *Handlers) Register(r *gin.RouterGroup) {
	r.POST("/documents", h.CreateDocument)
	r.GET("/documents", h.ListDocuments)
	r.GET("/documents/:documentId", h.GetDocument)
	r.PUT("/documents/:documentId/content", h.SaveDocument)

	r.GET("/documents/:documentId/versions", h.ListVersions)
	r.GET("/documents/:documentId/versions/:version", h.GetVersion)
	r.POST("/documents/:documentId/versions/:version/rollback", h.Rollback)

	r.GET("/documents/:documentId/comments", h.ListComments)
	r.POST("/documents/:documentId/comments", h.CreateComment)
	r.PATCH("/comments/:commentId", h.UpdateComment)
	r.DELETE("/comments/:commentId", h.DeleteComment)

	r.GET("/documents/:documentId/online-users", h.ListOnlineUsers)
}

func paramUint(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(400, gin.H{"code": "BAD_REQUEST", "message": "invalid " + name})
		return 0, false
	}
	return v, true
}
