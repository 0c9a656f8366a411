package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"collabEngine/backend/internal/cache"
	"collabEngine/backend/internal/collab"
)

type MessageType string

const (
	MsgOperation       MessageType = "OPERATION"
	MsgCursor          MessageType = "CURSOR"
	MsgJoin            MessageType = "JOIN"
	MsgLeave           MessageType = "LEAVE"
	MsgComment         MessageType = "COMMENT"
	MsgCommentDeleted  MessageType = "COMMENT_DELETED"
	MsgCommentUpdated  MessageType = "COMMENT_UPDATED"
	MsgDocumentUpdated MessageType = "DOCUMENT_UPDATED"
)

// Envelope 是房间中继的传输信封。
// Data 不是 any，而是按 Type 决定形状的标签联合：
// OPERATION→collab.Operation，CURSOR→CursorData，JOIN/LEAVE→[]cache.OnlineUser（服务端附带的权威花名册），
// COMMENT*→CommentPayload，DOCUMENT_UPDATED→DocumentUpdate。
// 收到后用对应的解码方法取出，不做运行时形状嗅探。
type Envelope struct {
	Type       MessageType     `json:"type"`
	DocumentID uint64          `json:"documentId"`
	UserID     uint64          `json:"userId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

type CursorData struct {
	Position int `json:"position"`
}

type DocumentUpdate struct {
	Content string `json:"content"`
	Version uint64 `json:"version"`
}

type CommentPayload struct {
	CommentID  uint64  `json:"commentId"`
	Content    string  `json:"content,omitempty"`
	Position   int     `json:"position,omitempty"`
	ParentID   *uint64 `json:"parentId,omitempty"`
	IsResolved bool    `json:"isResolved,omitempty"`
}

// NewEnvelope 构造带当前时间戳的信封；data 为 nil 时不带负载。
func NewEnvelope(t MessageType, documentID, userID uint64, data any) (Envelope, error) {
	env := Envelope{
		Type:       t,
		DocumentID: documentID,
		UserID:     userID,
		Timestamp:  time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Data = raw
	}
	return env, nil
}

func (e Envelope) Operation() (collab.Operation, error) {
	var op collab.Operation
	if e.Type != MsgOperation {
		return op, fmt.Errorf("not an OPERATION envelope: %s", e.Type)
	}
	err := json.Unmarshal(e.Data, &op)
	return op, err
}

func (e Envelope) Cursor() (CursorData, error) {
	var c CursorData
	if e.Type != MsgCursor {
		return c, fmt.Errorf("not a CURSOR envelope: %s", e.Type)
	}
	err := json.Unmarshal(e.Data, &c)
	return c, err
}

// Roster 解出 JOIN/LEAVE 信封附带的权威花名册；没带就返回 nil。
func (e Envelope) Roster() ([]cache.OnlineUser, error) {
	if e.Type != MsgJoin && e.Type != MsgLeave {
		return nil, fmt.Errorf("not a JOIN/LEAVE envelope: %s", e.Type)
	}
	if len(e.Data) == 0 {
		return nil, nil
	}
	var users []cache.OnlineUser
	err := json.Unmarshal(e.Data, &users)
	return users, err
}

func (e Envelope) Comment() (CommentPayload, error) {
	var c CommentPayload
	switch e.Type {
	case MsgComment, MsgCommentDeleted, MsgCommentUpdated:
	default:
		return c, fmt.Errorf("not a COMMENT envelope: %s", e.Type)
	}
	err := json.Unmarshal(e.Data, &c)
	return c, err
}

func (e Envelope) DocumentUpdate() (DocumentUpdate, error) {
	var u DocumentUpdate
	if e.Type != MsgDocumentUpdated {
		return u, fmt.Errorf("not a DOCUMENT_UPDATED envelope: %s", e.Type)
	}
	err := json.Unmarshal(e.Data, &u)
	return u, err
}
