package collab

import (
	"testing"

	"collabEngine/backend/internal/ot/delta"
)

func TestPieceTable_BasicString(t *testing.T) {
	pt := NewPieceTable("Hello world")
	if got := pt.String(); got != "Hello world" {
		t.Fatalf("String() = %q, want %q", got, "Hello world")
	}
	if gotLen := pt.Len(); gotLen != len([]rune("Hello world")) {
		t.Fatalf("Len() = %d, want %d", gotLen, len([]rune("Hello world")))
	}
}

func TestPieceTable_InsertMiddle(t *testing.T) {
	pt := NewPieceTable("Hello world")

	d := delta.Delta{
		{Kind: delta.KindRetain, Count: 5},               // 跳过 "Hello"
		{Kind: delta.KindInsert, Text: " collaborative"}, // 在 pos=5 插入
	}

	if err := pt.Apply(d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello collaborative world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_DeleteMiddle(t *testing.T) {
	pt := NewPieceTable("Hello collaborative world")

	d := delta.Delta{
		{Kind: delta.KindRetain, Count: 5},  // "Hello"
		{Kind: delta.KindDelete, Count: 14}, // " collaborative" 长度
	}

	if err := pt.Apply(d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_DeleteAcrossPieces(t *testing.T) {
	pt := NewPieceTable("abcdef")

	// 先插入把分片表拆碎
	if err := pt.Apply(delta.Delta{
		{Kind: delta.KindRetain, Count: 3},
		{Kind: delta.KindInsert, Text: "XYZ"},
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pt.String(); got != "abcXYZdef" {
		t.Fatalf("String() = %q, want %q", got, "abcXYZdef")
	}

	// 跨越 insert 分片和 original 右半片删除
	if err := pt.Apply(delta.Delta{
		{Kind: delta.KindRetain, Count: 2},
		{Kind: delta.KindDelete, Count: 5}, // "cXYZd"
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pt.String(); got != "abef" {
		t.Fatalf("String() = %q, want %q", got, "abef")
	}
}

func TestPieceTable_UnicodeRunes(t *testing.T) {
	pt := NewPieceTable("文档协作")

	if err := pt.Apply(delta.Delta{
		{Kind: delta.KindRetain, Count: 2},
		{Kind: delta.KindInsert, Text: "实时"},
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pt.String(); got != "文档实时协作" {
		t.Fatalf("String() = %q, want %q", got, "文档实时协作")
	}
	if got := pt.Len(); got != 6 {
		t.Fatalf("Len() = %d, want 6 (按 rune 计)", got)
	}
}
