package handlers

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"collabEngine/backend/internal/store"
)

func (h *Handlers) ListVersions(c *gin.Context) {
	docID, ok := paramUint(c, "documentId")
	if !ok {
		return
	}
	versions, err := h.versions.List(c.Request.Context(), docID)
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "list versions failed"})
		return
	}
	c.JSON(200, versions)
}

// GetVersion 预览某个历史快照，不改动当前内容。
func (h *Handlers) GetVersion(c *gin.Context) {
	docID, ok := paramUint(c, "documentId")
	if !ok {
		return
	}
	version, ok := paramUint(c, "version")
	if !ok {
		return
	}
	snap, err := h.versions.Get(c.Request.Context(), docID, version)
	if errors.Is(err, store.ErrVersionNotFound) {
		c.JSON(404, gin.H{"code": "NOT_FOUND", "message": "version not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "load version failed"})
		return
	}
	c.JSON(200, snap)
}

// Rollback 把目标快照的内容写成当前内容。
// 新版本号取 max(台账最大值, 当前版本)+1，目标快照原来的号码从不复用，
// 中间所有快照都保留；允许回滚到比当前版本号更大的“未来快照”
// （之前的回滚会留下这种快照），唯独不允许回滚到当前版本自身。
// 只有文档创建者可以回滚。
func (h *Handlers) Rollback(c *gin.Context) {
	docID, ok := paramUint(c, "documentId")
	if !ok {
		return
	}
	target, ok := paramUint(c, "version")
	if !ok {
		return
	}
	userID := c.GetUint64("userId")
	ctx := c.Request.Context()

	doc, err := h.documents.Get(ctx, docID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		c.JSON(404, gin.H{"code": "NOT_FOUND", "message": "document not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "load document failed"})
		return
	}

	if doc.CreatorID != userID {
		c.JSON(403, gin.H{"code": "FORBIDDEN", "message": "only the creator can roll back"})
		return
	}
	if target == doc.Version {
		c.JSON(400, gin.H{"code": "BAD_REQUEST", "message": "already at this version"})
		return
	}

	snap, err := h.versions.Get(ctx, docID, target)
	if errors.Is(err, store.ErrVersionNotFound) {
		c.JSON(404, gin.H{"code": "NOT_FOUND", "message": "target version not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "load target version failed"})
		return
	}

	max, err := h.versions.MaxVersion(ctx, docID)
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "rollback failed"})
		return
	}
	if doc.Version > max {
		max = doc.Version
	}
	newVersion := max + 1

	doc, err = h.documents.SetCurrent(ctx, docID, snap.Content, newVersion)
	if err != nil {
		log.Printf("rollback write error (doc=%d, target=%d): %v", docID, target, err)
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "rollback failed"})
		return
	}
	if err := h.versions.Append(ctx, docID, newVersion, snap.Content, userID); err != nil {
		log.Printf("append rollback version error (doc=%d, v=%d): %v", docID, newVersion, err)
	}

	h.notifyDocumentUpdated(doc, userID)
	c.JSON(200, doc)
}
