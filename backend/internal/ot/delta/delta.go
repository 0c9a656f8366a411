package delta

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// Op 是本地编辑的最小原语。
// - retain: 跳过 Count 个字符；带 Attrs 时表示对这段文本做格式化（加粗/颜色等）
// - insert: 在当前位置插入 Text，Attrs 为插入文本自带的样式
// - delete: 从当前位置删除 Count 个字符
type Op struct {
	Kind  Kind           `json:"kind"`
	Count int            `json:"count,omitempty"`
	Text  string         `json:"text,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Delta 是一次编辑产生的原语序列，按顺序解释。
// 例："ops":[{"kind":"retain","count":5},{"kind":"insert","text":"Hello"}]
type Delta []Op

// TextLen 返回 insert 原语的字符数（按 rune 计）。
func (o Op) TextLen() int { return len([]rune(o.Text)) }
