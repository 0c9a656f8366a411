package handlers

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"collabEngine/backend/internal/store"
	"collabEngine/backend/internal/ws"
)

func (h *Handlers) ListComments(c *gin.Context) {
	docID, ok := paramUint(c, "documentId")
	if !ok {
		return
	}
	comments, err := h.comments.ListByDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "list comments failed"})
		return
	}
	c.JSON(200, comments)
}

type createCommentReq struct {
	Content  string  `json:"content" binding:"required"`
	Position int     `json:"position"` // 0 = 未锚定的整体评论
	ParentID *uint64 `json:"parentId,omitempty"`
}

func (h *Handlers) CreateComment(c *gin.Context) {
	docID, ok := paramUint(c, "documentId")
	if !ok {
		return
	}
	userID := c.GetUint64("userId")

	var req createCommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"code": "BAD_REQUEST", "message": "content is required"})
		return
	}
	if req.Position < 0 {
		req.Position = 0
	}

	comment, err := h.comments.Create(c.Request.Context(), docID, userID, req.Content, req.Position, req.ParentID)
	switch {
	case errors.Is(err, store.ErrCommentNotFound):
		c.JSON(404, gin.H{"code": "NOT_FOUND", "message": "parent comment not found"})
		return
	case errors.Is(err, store.ErrNestedReply):
		c.JSON(400, gin.H{"code": "BAD_REQUEST", "message": "replies to replies are not allowed"})
		return
	case err != nil:
		log.Printf("create comment error (doc=%d, user=%d): %v", docID, userID, err)
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "create comment failed"})
		return
	}

	h.notifyComment(ws.MsgComment, comment, userID)
	c.JSON(200, comment)
}

type updateCommentReq struct {
	Content    *string `json:"content,omitempty"`
	IsResolved *bool   `json:"isResolved,omitempty"`
}

func (h *Handlers) UpdateComment(c *gin.Context) {
	commentID, ok := paramUint(c, "commentId")
	if !ok {
		return
	}
	userID := c.GetUint64("userId")

	var req updateCommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"code": "BAD_REQUEST", "message": "invalid body"})
		return
	}

	comment, err := h.comments.Update(c.Request.Context(), commentID, req.Content, req.IsResolved)
	if errors.Is(err, store.ErrCommentNotFound) {
		c.JSON(404, gin.H{"code": "NOT_FOUND", "message": "comment not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "update comment failed"})
		return
	}

	h.notifyComment(ws.MsgCommentUpdated, comment, userID)
	c.JSON(200, comment)
}

func (h *Handlers) DeleteComment(c *gin.Context) {
	commentID, ok := paramUint(c, "commentId")
	if !ok {
		return
	}
	userID := c.GetUint64("userId")

	comment, err := h.comments.Get(c.Request.Context(), commentID)
	if errors.Is(err, store.ErrCommentNotFound) {
		c.JSON(404, gin.H{"code": "NOT_FOUND", "message": "comment not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "delete comment failed"})
		return
	}

	if err := h.comments.Delete(c.Request.Context(), commentID); err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "delete comment failed"})
		return
	}

	h.notifyComment(ws.MsgCommentDeleted, comment, userID)
	c.JSON(200, gin.H{"deleted": commentID})
}

// ListOnlineUsers 返回房间当前花名册（含光标位置和颜色）。
func (h *Handlers) ListOnlineUsers(c *gin.Context) {
	docID, ok := paramUint(c, "documentId")
	if !ok {
		return
	}
	roster, err := h.hub.Presence().Roster(c.Request.Context(), docID)
	if err != nil {
		c.JSON(500, gin.H{"code": "INTERNAL", "message": "load roster failed"})
		return
	}
	c.JSON(200, roster)
}

// notifyComment 把评论变动推给房间里所有人（发起方也收，用于多端同步）。
func (h *Handlers) notifyComment(t ws.MessageType, comment *store.Comment, userID uint64) {
	msg, err := ws.NewEnvelope(t, comment.DocumentID, userID, ws.CommentPayload{
		CommentID:  comment.ID,
		Content:    comment.Content,
		Position:   comment.Position,
		ParentID:   comment.ParentID,
		IsResolved: comment.IsResolved,
	})
	if err != nil {
		log.Printf("encode comment notify error (comment=%d): %v", comment.ID, err)
		return
	}
	h.hub.Broadcast(comment.DocumentID, msg, nil)
}
