package collab

import (
	"testing"

	"collabEngine/backend/internal/ot/delta"
)

// 属性：derive 出的操作序列在另一端逐条应用，等价于直接应用原 delta。
func TestEngine_DeriveApplyRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		initial string
		d       delta.Delta
	}{
		{"insert head", "world", delta.Delta{{Kind: delta.KindInsert, Text: "Hello "}}},
		{"insert middle", "Hello world", delta.Delta{
			{Kind: delta.KindRetain, Count: 5},
			{Kind: delta.KindInsert, Text: ","},
		}},
		{"delete", "Hello world", delta.Delta{
			{Kind: delta.KindRetain, Count: 5},
			{Kind: delta.KindDelete, Count: 6},
		}},
		{"insert then delete", "abcdef", delta.Delta{
			{Kind: delta.KindInsert, Text: "XY"},
			{Kind: delta.KindRetain, Count: 2},
			{Kind: delta.KindDelete, Count: 1},
		}},
		{"format run", "abcdef", delta.Delta{
			{Kind: delta.KindRetain, Count: 1},
			{Kind: delta.KindRetain, Count: 3, Attrs: map[string]any{"bold": true}},
			{Kind: delta.KindDelete, Count: 2},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			local := NewEditor(tc.initial, 1)
			remote := NewEditor(tc.initial, 1)

			ops, err := local.ApplyDelta(tc.d, OriginLocal)
			if err != nil {
				t.Fatalf("ApplyDelta() error = %v", err)
			}
			for _, op := range ops {
				if err := remote.ApplyOperation(op); err != nil {
					t.Fatalf("ApplyOperation(%+v) error = %v", op, err)
				}
			}

			if local.String() != remote.String() {
				t.Fatalf("buffers diverged: local=%q remote=%q", local.String(), remote.String())
			}
			lf, rf := local.Formats(), remote.Formats()
			if len(lf) != len(rf) {
				t.Fatalf("format spans diverged: local=%v remote=%v", lf, rf)
			}
			for i := range lf {
				if lf[i] != rf[i] {
					t.Fatalf("format span %d diverged: local=%+v remote=%+v", i, lf[i], rf[i])
				}
			}
		})
	}
}

// 远端来源只应用、不派生：不会产生回环操作。
func TestEngine_RemoteOriginDerivesNothing(t *testing.T) {
	e := NewEditor("abc", 1)
	ops, err := e.ApplyDelta(delta.Delta{{Kind: delta.KindInsert, Text: "x"}}, OriginRemote)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if ops != nil {
		t.Fatalf("remote origin derived ops: %+v", ops)
	}
	if e.String() != "xabc" {
		t.Fatalf("String() = %q, want %q", e.String(), "xabc")
	}
}

func TestEngine_InsertPositionClamped(t *testing.T) {
	e := NewEditor("abc", 1)
	// position 远超当前长度：夹到末尾，不报错
	err := e.ApplyOperation(Operation{Type: OpInsert, Position: 100, Data: "!"})
	if err != nil {
		t.Fatalf("ApplyOperation() error = %v", err)
	}
	if e.String() != "abc!" {
		t.Fatalf("String() = %q, want %q", e.String(), "abc!")
	}

	// 负数位置夹到 0
	if err := e.ApplyOperation(Operation{Type: OpInsert, Position: -5, Data: "#"}); err != nil {
		t.Fatalf("ApplyOperation() error = %v", err)
	}
	if e.String() != "#abc!" {
		t.Fatalf("String() = %q, want %q", e.String(), "#abc!")
	}
}

func TestEngine_DeleteLengthClamped(t *testing.T) {
	e := NewEditor("abcdef", 1)
	// position+length 越界：长度夹到 L-position
	if err := e.ApplyOperation(Operation{Type: OpDelete, Position: 4, Length: 100}); err != nil {
		t.Fatalf("ApplyOperation() error = %v", err)
	}
	if e.String() != "abcd" {
		t.Fatalf("String() = %q, want %q", e.String(), "abcd")
	}

	// 夹完 <=0：整条跳过，内容不动
	if err := e.ApplyOperation(Operation{Type: OpDelete, Position: 100, Length: 3}); err != nil {
		t.Fatalf("ApplyOperation() error = %v", err)
	}
	if e.String() != "abcd" {
		t.Fatalf("String() = %q, want unchanged %q", e.String(), "abcd")
	}
}

func TestEngine_FormatDefaultsAndClamps(t *testing.T) {
	e := NewEditor("abcdef", 1)
	// length 缺省按 1
	if err := e.ApplyOperation(Operation{Type: OpFormat, Position: 2, FormatType: "bold", FormatValue: true}); err != nil {
		t.Fatalf("ApplyOperation() error = %v", err)
	}
	spans := e.Formats()
	if len(spans) != 1 || spans[0].Length != 1 || spans[0].Position != 2 {
		t.Fatalf("Formats() = %+v, want 单条 @2 len=1", spans)
	}

	// 越界 span 被夹紧
	if err := e.ApplyOperation(Operation{Type: OpFormat, Position: 4, Length: 100, FormatType: "italic", FormatValue: true}); err != nil {
		t.Fatalf("ApplyOperation() error = %v", err)
	}
	spans = e.Formats()
	if len(spans) != 2 || spans[1].Length != 2 {
		t.Fatalf("Formats() = %+v, want 第二条 len=2", spans)
	}
}

func TestEngine_UnknownTypeIgnored(t *testing.T) {
	e := NewEditor("abc", 1)
	if err := e.ApplyOperation(Operation{Type: "SHUFFLE", Position: 0}); err != nil {
		t.Fatalf("unknown type must be ignored, got error %v", err)
	}
	if e.String() != "abc" {
		t.Fatalf("String() = %q, want unchanged %q", e.String(), "abc")
	}
}

// 场景：A 在空文档插入 "Hello"，B 应用广播；A 再删 2 字符，双方收敛到 "llo"。
func TestEngine_TwoClientScenario(t *testing.T) {
	a := NewEditor("", 1)
	b := NewEditor("", 1)

	ops, err := a.ApplyDelta(delta.Delta{{Kind: delta.KindInsert, Text: "Hello"}}, OriginLocal)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	for _, op := range ops {
		if err := b.ApplyOperation(op); err != nil {
			t.Fatalf("ApplyOperation() error = %v", err)
		}
	}
	if b.String() != "Hello" {
		t.Fatalf("b = %q, want %q", b.String(), "Hello")
	}

	ops, err = a.ApplyDelta(delta.Delta{{Kind: delta.KindDelete, Count: 2}}, OriginLocal)
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	for _, op := range ops {
		if err := b.ApplyOperation(op); err != nil {
			t.Fatalf("ApplyOperation() error = %v", err)
		}
	}

	if a.String() != "llo" || b.String() != "llo" {
		t.Fatalf("not converged: a=%q b=%q, want %q", a.String(), b.String(), "llo")
	}
}

// 场景：两人并发在 0 号位插入，中继不做变换。
// 各端按到达顺序在本地夹紧后应用；这里两端初始一致，结果也一致，
// 但这是到达顺序的产物，不是收敛保证（弱一致性是明确接受的取舍）。
func TestEngine_ConcurrentInsertsRelayOrder(t *testing.T) {
	// C 是第三个旁观端，依次收到 A、B 的插入
	c := NewEditor("", 1)

	opA := Operation{Type: OpInsert, Position: 0, Data: "A"}
	opB := Operation{Type: OpInsert, Position: 0, Data: "B"}

	if err := c.ApplyOperation(opA); err != nil {
		t.Fatalf("ApplyOperation(A) error = %v", err)
	}
	if err := c.ApplyOperation(opB); err != nil {
		t.Fatalf("ApplyOperation(B) error = %v", err)
	}

	if c.String() != "BA" {
		t.Fatalf("c = %q, want %q (到达顺序 A 后 B，B 插在 0 号位)", c.String(), "BA")
	}
}

func TestEngine_SetContentResetsFormats(t *testing.T) {
	e := NewEditor("abc", 1)
	_ = e.ApplyOperation(Operation{Type: OpFormat, Position: 0, Length: 2, FormatType: "bold", FormatValue: true})

	e.SetContent("fresh", 7)
	if e.String() != "fresh" || e.Version() != 7 {
		t.Fatalf("SetContent 未生效: %q v%d", e.String(), e.Version())
	}
	if len(e.Formats()) != 0 {
		t.Fatalf("Formats() = %+v, want 清空", e.Formats())
	}
}
