package store

import "time"

// Document 是持久化的文档行。
// Version 单调不减，只由显式保存/回滚推进；瞬时操作从不改这行。
type Document struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Content   string    `gorm:"type:longtext" json:"content"`
	CreatorID uint64    `gorm:"index;not null" json:"creatorId"`
	Version   uint64    `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Comment 的 Position 是文档线性文本里的静态锚点，0 表示未锚定的整体评论。
// 锚点不随后续编辑变换，读取方要容忍越界。
// ParentID 只允许指向顶层评论（一层回复，不嵌套）。
type Comment struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	DocumentID uint64    `gorm:"index;not null" json:"documentId"`
	UserID     uint64    `gorm:"not null" json:"userId"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Position   int       `gorm:"default:0" json:"position"`
	ParentID   *uint64   `gorm:"index" json:"parentId,omitempty"`
	IsResolved bool      `gorm:"default:false" json:"isResolved"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DocumentVersion 是只追加的版本台账里的一行（裸 SQL 存取，见 version_store.go）。
// 同一文档的 version 严格递增、从不复用，回滚也只会追加新行。
type DocumentVersion struct {
	ID         uint64    `json:"id"`
	DocumentID uint64    `json:"documentId"`
	Version    uint64    `json:"version"`
	Content    string    `json:"content"`
	CreatedBy  uint64    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
}
