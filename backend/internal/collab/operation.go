package collab

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"collabEngine/backend/internal/ot/delta"
)

type OpType string

const (
	OpInsert OpType = "INSERT"
	OpDelete OpType = "DELETE"
	OpFormat OpType = "FORMAT"
)

// Operation 是编辑在线路上的表示：以整数偏移寻址文档线性文本。
// Position 是发送方发出时刻本地缓冲区里的偏移，中继不做任何变换，
// 接收方负责把它夹紧到自己当前的边界内再应用。
type Operation struct {
	ID          string         `json:"operationId,omitempty"`
	Type        OpType         `json:"type"`
	Position    int            `json:"position"`
	Length      int            `json:"length,omitempty"`
	Data        string         `json:"data,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	FormatType  string         `json:"formatType,omitempty"`
	FormatValue any            `json:"formatValue,omitempty"`
	Timestamp   int64          `json:"timestamp"`
	Version     uint64         `json:"version"`
}

// DeriveOperations 把一次本地编辑（delta）转换成零或多条 Operation。
// position 游标沿 delta 前进：
// - retain 只推进游标；带 Attrs 的 retain 对每个属性键各发一条 FORMAT
// - insert 在当前游标发 INSERT，游标前进插入长度
// - delete 在当前游标发 DELETE，游标不动（后续文本左移）
func DeriveOperations(d delta.Delta, version uint64) []Operation {
	var ops []Operation
	now := time.Now().UnixMilli()
	position := 0

	for _, op := range d {
		switch op.Kind {
		case delta.KindInsert:
			ops = append(ops, Operation{
				ID:         uuid.NewString(),
				Type:       OpInsert,
				Position:   position,
				Length:     op.TextLen(),
				Data:       op.Text,
				Attributes: op.Attrs,
				Timestamp:  now,
				Version:    version,
			})
			position += op.TextLen()

		case delta.KindDelete:
			ops = append(ops, Operation{
				ID:        uuid.NewString(),
				Type:      OpDelete,
				Position:  position,
				Length:    op.Count,
				Timestamp: now,
				Version:   version,
			})
			// 删除不推进游标

		case delta.KindRetain:
			if len(op.Attrs) > 0 {
				// map 遍历无序，排序保证派生结果可复现
				for _, key := range sortedKeys(op.Attrs) {
					ops = append(ops, Operation{
						ID:          uuid.NewString(),
						Type:        OpFormat,
						Position:    position,
						Length:      op.Count,
						FormatType:  key,
						FormatValue: op.Attrs[key],
						Attributes:  map[string]any{key: op.Attrs[key]},
						Timestamp:   now,
						Version:     version,
					})
				}
			}
			position += op.Count
		}
	}
	return ops
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
