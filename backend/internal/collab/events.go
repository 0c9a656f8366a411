package collab

import "time"

// OperationRelayed 是中继转发一条操作后发往 Kafka 的审计事件。
// 中继本身不落库操作记录，回放/审计消费方在下游自行订阅。
type OperationRelayed struct {
	EventType  string    `json:"eventType"` // 固定 "OP_RELAYED"
	DocumentID uint64    `json:"documentId"`
	UserID     uint64    `json:"userId"`
	Operation  Operation `json:"operation"`
	RelayedAt  time.Time `json:"relayedAt"`
}
