package collab

import (
	"fmt"
	"log"

	"collabEngine/backend/internal/ot/delta"
)

// Origin 标记一次缓冲区变更的来源。
// 远端操作带 OriginRemote 进入，不会再派生出站操作，
// 从根上消除“远端应用 → 又当成本地编辑发出去”的回环，
// 也不依赖任何定时器复位的共享布尔标志。
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
	OriginProgrammatic
)

// FormatSpan 记录一段文本上的一个格式属性。
// 和评论锚点一样，span 记录的是应用时刻的偏移，后续编辑不做变换，
// 渲染层需要容忍越界的旧 span。
type FormatSpan struct {
	Position int    `json:"position"`
	Length   int    `json:"length"`
	Type     string `json:"formatType"`
	Value    any    `json:"formatValue"`
}

// Editor 是客户端同步引擎：持有本地缓冲区，
// 本地编辑经 ApplyDelta 进入并派生出站操作，
// 远端操作经 ApplyOperation 进入并做防御性夹紧。
type Editor struct {
	buf     Buffer
	formats []FormatSpan
	version uint64
}

func NewEditor(initial string, version uint64) *Editor {
	return &Editor{buf: NewPieceTable(initial), version: version}
}

func (e *Editor) Len() int        { return e.buf.Len() }
func (e *Editor) String() string  { return e.buf.String() }
func (e *Editor) Version() uint64 { return e.version }

// Formats 返回格式 span 的副本。
func (e *Editor) Formats() []FormatSpan {
	out := make([]FormatSpan, len(e.formats))
	copy(out, e.formats)
	return out
}

// SetContent 整体替换内容（加载文档、收到 DOCUMENT_UPDATED、回滚后刷新）。
// 来源视为 programmatic，清空格式 span，不派生操作。
func (e *Editor) SetContent(content string, version uint64) {
	e.buf = NewPieceTable(content)
	e.formats = nil
	e.version = version
}

// ApplyDelta 把一次编辑应用到本地缓冲区。
// 仅当 origin 为 OriginLocal 时返回派生出的 Operation 序列；
// remote/programmatic 来源只应用、不派生。
func (e *Editor) ApplyDelta(d delta.Delta, origin Origin) ([]Operation, error) {
	if err := e.buf.Apply(d); err != nil {
		return nil, fmt.Errorf("apply delta: %w", err)
	}
	e.recordDeltaFormats(d)

	if origin != OriginLocal {
		return nil, nil
	}
	return DeriveOperations(d, e.version), nil
}

// recordDeltaFormats 把 delta 中的格式信息落到 span 账本，
// 游标走法与 DeriveOperations 完全一致，保证两条路径殊途同归。
func (e *Editor) recordDeltaFormats(d delta.Delta) {
	position := 0
	for _, op := range d {
		switch op.Kind {
		case delta.KindInsert:
			e.recordFormats(position, op.TextLen(), op.Attrs)
			position += op.TextLen()
		case delta.KindRetain:
			e.recordFormats(position, op.Count, op.Attrs)
			position += op.Count
		case delta.KindDelete:
			// 不推进游标
		}
	}
}

func (e *Editor) recordFormats(position, length int, attrs map[string]any) {
	if len(attrs) == 0 || length <= 0 {
		return
	}
	for _, key := range sortedKeys(attrs) {
		e.formats = append(e.formats, FormatSpan{
			Position: position,
			Length:   length,
			Type:     key,
			Value:    attrs[key],
		})
	}
}

// ApplyOperation 把一条远端操作应用到本地缓冲区。
// 边界问题一律夹紧或跳过，绝不报错给发送方：
// position 夹到 [0, L]；DELETE 长度夹到 L-position，夹完 <=0 则整条跳过；
// FORMAT 长度缺省按 1，同样夹紧。未知类型记日志后忽略。
func (e *Editor) ApplyOperation(op Operation) error {
	length := e.buf.Len()

	position := op.Position
	if position < 0 {
		position = 0
	}
	if position > length {
		position = length
	}

	switch op.Type {
	case OpInsert:
		d := delta.Delta{}
		if position > 0 {
			d = append(d, delta.Op{Kind: delta.KindRetain, Count: position})
		}
		d = append(d, delta.Op{Kind: delta.KindInsert, Text: op.Data, Attrs: op.Attributes})
		if err := e.buf.Apply(d); err != nil {
			return fmt.Errorf("apply remote insert: %w", err)
		}
		e.recordFormats(position, len([]rune(op.Data)), op.Attributes)

	case OpDelete:
		n := op.Length
		if n > length-position {
			n = length - position
		}
		if n <= 0 {
			return nil
		}
		d := delta.Delta{}
		if position > 0 {
			d = append(d, delta.Op{Kind: delta.KindRetain, Count: position})
		}
		d = append(d, delta.Op{Kind: delta.KindDelete, Count: n})
		if err := e.buf.Apply(d); err != nil {
			return fmt.Errorf("apply remote delete: %w", err)
		}

	case OpFormat:
		if op.FormatType == "" {
			return nil
		}
		n := op.Length
		if n == 0 {
			n = 1
		}
		if n > length-position {
			n = length - position
		}
		if n <= 0 {
			return nil
		}
		e.formats = append(e.formats, FormatSpan{
			Position: position,
			Length:   n,
			Type:     op.FormatType,
			Value:    op.FormatValue,
		})

	default:
		log.Printf("ignore unknown operation type %q (op=%s)", op.Type, op.ID)
	}
	return nil
}
