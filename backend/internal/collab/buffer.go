package collab

import (
	"collabEngine/backend/internal/ot/delta"
)

// Buffer 抽象文档内容缓冲区。
// 默认实现是 PieceTable；测试里也可以换成简单的 []rune 实现。
type Buffer interface {
	Len() int
	Apply(d delta.Delta) error
	String() string
}
