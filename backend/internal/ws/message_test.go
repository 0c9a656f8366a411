package ws

import (
	"testing"

	"collabEngine/backend/internal/cache"
	"collabEngine/backend/internal/collab"
)

func TestEnvelope_OperationDecode(t *testing.T) {
	op := collab.Operation{Type: collab.OpInsert, Position: 3, Data: "世界", Version: 4}
	env, err := NewEnvelope(MsgOperation, 7, 1, op)
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}

	got, err := env.Operation()
	if err != nil {
		t.Fatalf("Operation() error = %v", err)
	}
	if got.Type != collab.OpInsert || got.Position != 3 || got.Data != "世界" || got.Version != 4 {
		t.Fatalf("Operation() = %+v", got)
	}

	// 类型不匹配的信封拒绝解码
	if _, err := env.Cursor(); err == nil {
		t.Fatal("Cursor() 对 OPERATION 信封应报错")
	}
}

func TestEnvelope_RosterDecode(t *testing.T) {
	pos := 5
	roster := []cache.OnlineUser{
		{UserID: 1, Username: "alice", Color: "#f44336", CursorPosition: &pos},
		{UserID: 2, Username: "bob", Color: "#2196f3"},
	}
	env, err := NewEnvelope(MsgJoin, 7, 1, roster)
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}

	got, err := env.Roster()
	if err != nil {
		t.Fatalf("Roster() error = %v", err)
	}
	if len(got) != 2 || got[0].Username != "alice" || got[0].CursorPosition == nil || *got[0].CursorPosition != 5 {
		t.Fatalf("Roster() = %+v", got)
	}
	if got[1].CursorPosition != nil {
		t.Fatalf("bob 不该带光标位置: %+v", got[1])
	}
}

func TestEnvelope_RosterAbsentIsNil(t *testing.T) {
	env, err := NewEnvelope(MsgLeave, 7, 2, nil)
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	got, err := env.Roster()
	if err != nil {
		t.Fatalf("Roster() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Roster() = %+v, want nil", got)
	}
}

func TestEnvelope_DocumentUpdateDecode(t *testing.T) {
	env, err := NewEnvelope(MsgDocumentUpdated, 7, 0, DocumentUpdate{Content: "rolled back", Version: 9})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	got, err := env.DocumentUpdate()
	if err != nil {
		t.Fatalf("DocumentUpdate() error = %v", err)
	}
	if got.Content != "rolled back" || got.Version != 9 {
		t.Fatalf("DocumentUpdate() = %+v", got)
	}
}

func TestEnvelope_CommentDecode(t *testing.T) {
	parent := uint64(11)
	env, err := NewEnvelope(MsgCommentUpdated, 7, 3, CommentPayload{CommentID: 12, Content: "done", ParentID: &parent, IsResolved: true})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	got, err := env.Comment()
	if err != nil {
		t.Fatalf("Comment() error = %v", err)
	}
	if got.CommentID != 12 || !got.IsResolved || got.ParentID == nil || *got.ParentID != 11 {
		t.Fatalf("Comment() = %+v", got)
	}
}
