package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrCommentNotFound = errors.New("COMMENT_NOT_FOUND")
	// 回复只允许一层：parentId 必须指向顶层评论
	ErrNestedReply = errors.New("NESTED_REPLY_NOT_ALLOWED")
)

type CommentStore struct{ db *gorm.DB }

func NewCommentStore(db *gorm.DB) *CommentStore {
	return &CommentStore{db: db}
}

// Create 新建评论。position 为 0 表示整体评论（未锚定）；
// 锚点只做记录，不校验是否超出当前文档长度（编辑后本来就可能越界）。
func (s *CommentStore) Create(ctx context.Context, docID, userID uint64, content string, position int, parentID *uint64) (*Comment, error) {
	if parentID != nil {
		var parent Comment
		err := s.db.WithContext(ctx).First(&parent, *parentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommentNotFound
		}
		if err != nil {
			return nil, err
		}
		if parent.ParentID != nil {
			return nil, ErrNestedReply
		}
	}

	c := &Comment{
		DocumentID: docID,
		UserID:     userID,
		Content:    content,
		Position:   position,
		ParentID:   parentID,
		IsResolved: false,
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListByDocument 返回文档全部评论（含回复），按创建时间升序。
func (s *CommentStore) ListByDocument(ctx context.Context, docID uint64) ([]Comment, error) {
	var comments []Comment
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	return comments, err
}

func (s *CommentStore) Get(ctx context.Context, id uint64) (*Comment, error) {
	var c Comment
	err := s.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Update 可改内容、切换解决状态；其他字段不动。
func (s *CommentStore) Update(ctx context.Context, id uint64, content *string, isResolved *bool) (*Comment, error) {
	updates := map[string]any{}
	if content != nil {
		updates["content"] = *content
	}
	if isResolved != nil {
		updates["is_resolved"] = *isResolved
	}
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&Comment{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrCommentNotFound
		}
	}
	return s.Get(ctx, id)
}

// Delete 连带删掉它的一层回复。
func (s *CommentStore) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Comment{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCommentNotFound
		}
		return tx.Where("parent_id = ?", id).Delete(&Comment{}).Error
	})
}
