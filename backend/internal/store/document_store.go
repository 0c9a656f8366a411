package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrDocumentNotFound = errors.New("DOCUMENT_NOT_FOUND")
	// ErrVersionConflict：带期望版本的保存发现版本已被别人推进
	ErrVersionConflict = errors.New("VERSION_CONFLICT")
)

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Create(ctx context.Context, title string, creatorID uint64) (*Document, error) {
	doc := &Document{Title: title, Content: "", CreatorID: creatorID, Version: 1}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentStore) Get(ctx context.Context, id uint64) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).First(&doc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentStore) ListByCreator(ctx context.Context, creatorID uint64) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("updated_at DESC").
		Find(&docs).Error
	return docs, err
}

// SaveContent 落盘内容并把版本 +1（last-write-wins，遗留默认行为）。
// 并发保存不做互斥；谁后提交谁生效，丢更新风险由上层自知。
func (s *DocumentStore) SaveContent(ctx context.Context, id uint64, content string) (*Document, error) {
	res := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"content": content,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDocumentNotFound
	}
	return s.Get(ctx, id)
}

// SaveContentAt 是带乐观并发检查的保存：
// 只有当前版本仍等于 expectedVersion 时才写入，否则返回 ErrVersionConflict。
func (s *DocumentStore) SaveContentAt(ctx context.Context, id uint64, content string, expectedVersion uint64) (*Document, error) {
	res := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"content": content,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}
	return s.Get(ctx, id)
}

// SetCurrent 把内容和版本一起写成指定值（回滚路径用，版本号由调用方算好）。
func (s *DocumentStore) SetCurrent(ctx context.Context, id uint64, content string, version uint64) (*Document, error) {
	res := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"content": content,
			"version": version,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDocumentNotFound
	}
	return s.Get(ctx, id)
}
