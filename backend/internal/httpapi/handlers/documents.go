package handlers

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"collabEngine/backend/internal/store"
	"collabEngine/backend/internal/ws"
)

type createDocumentReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handlers) CreateDocument(c *gin.Context) {
	userID := c.GetUint64("userId")

	var req createDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"code": "BAD_REQUEST", "message": "title is required"})
		return
	}

	doc, err := h.documents.Create(c.Request.Context(), req.Title, userID)
	if err != nil {
		log.Printf("create document error (user=%d): %v", userID, err)
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "create document failed"})
		return
	}

	// 初始版本也进台账，回滚才能回到“刚创建”状态
	if err := h.versions.Append(c.Request.Context(), doc.ID, doc.Version, doc.Content, userID); err != nil {
		log.Printf("append initial version error (doc=%d): %v", doc.ID, err)
	}

	c.JSON(200, doc)
}

func (h *Handlers) GetDocument(c *gin.Context) {
	docID, ok := paramUint(c, "documentId")
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), docID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		c.JSON(404, gin.H{"code": "NOT_FOUND", "message": "document not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "load document failed"})
		return
	}
	c.JSON(200, doc)
}

func (h *Handlers) ListDocuments(c *gin.Context) {
	userID := c.GetUint64("userId")
	docs, err := h.documents.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "list documents failed"})
		return
	}
	c.JSON(200, docs)
}

type saveDocumentReq struct {
	Content string `json:"content"`
	// Version 可选：带上就启用乐观并发检查，不带保持 last-write-wins
	Version *uint64 `json:"version,omitempty"`
}

// SaveDocument 显式保存：落盘整个缓冲区，版本 +1，追加一行版本台账。
// 保存与在途操作之间没有顺序保证；刚广播还没应用到的远端操作可能不在这次快照里。
func (h *Handlers) SaveDocument(c *gin.Context) {
	docID, ok := paramUint(c, "documentId")
	if !ok {
		return
	}
	userID := c.GetUint64("userId")

	var req saveDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"code": "BAD_REQUEST", "message": "invalid body"})
		return
	}

	var (
		doc *store.Document
		err error
	)
	if req.Version != nil {
		doc, err = h.documents.SaveContentAt(c.Request.Context(), docID, req.Content, *req.Version)
	} else {
		doc, err = h.documents.SaveContent(c.Request.Context(), docID, req.Content)
	}

	switch {
	case errors.Is(err, store.ErrDocumentNotFound):
		c.JSON(404, gin.H{"code": "NOT_FOUND", "message": "document not found"})
		return
	case errors.Is(err, store.ErrVersionConflict):
		c.JSON(409, gin.H{"code": "VERSION_CONFLICT", "message": "document version changed, reload and retry"})
		return
	case err != nil:
		log.Printf("save document error (doc=%d, user=%d): %v", docID, userID, err)
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "save failed"})
		return
	}

	if err := h.versions.Append(c.Request.Context(), doc.ID, doc.Version, doc.Content, userID); err != nil {
		log.Printf("append version error (doc=%d, v=%d): %v", doc.ID, doc.Version, err)
	}

	h.notifyDocumentUpdated(doc, userID)
	c.JSON(200, doc)
}

// notifyDocumentUpdated 向房间推送全量内容更新（保存/回滚后刷新用）。
func (h *Handlers) notifyDocumentUpdated(doc *store.Document, userID uint64) {
	msg, err := ws.NewEnvelope(ws.MsgDocumentUpdated, doc.ID, userID, ws.DocumentUpdate{
		Content: doc.Content,
		Version: doc.Version,
	})
	if err != nil {
		log.Printf("encode document update error (doc=%d): %v", doc.ID, err)
		return
	}
	h.hub.Broadcast(doc.ID, msg, nil)
}
