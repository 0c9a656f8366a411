package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

var ErrVersionNotFound = errors.New("VERSION_NOT_FOUND")

// VersionStore 管理只追加的版本台账。
// 故意用裸 SQL：台账只有插入和几条固定查询，且需要 MAX(version) 这类
// 在 SQL 里一眼能看懂的语句。
type VersionStore struct{ db *sql.DB }

func NewVersionStore(db *sql.DB) *VersionStore {
	return &VersionStore{db: db}
}

// EnsureSchema 建台账表；(document_id, version) 唯一约束保证版本号从不复用。
func (s *VersionStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS document_versions (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			document_id BIGINT UNSIGNED NOT NULL,
			version BIGINT UNSIGNED NOT NULL,
			content LONGTEXT,
			created_by BIGINT UNSIGNED NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uk_doc_version (document_id, version)
		)`)
	return err
}

// Append 追加一行快照。重复的 (document_id, version) 视为已存在，静默吸收
// （两个并发保存推进到同一版本时只留第一份，不报错给调用方）。
func (s *VersionStore) Append(ctx context.Context, docID, version uint64, content string, createdBy uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_versions (document_id, version, content, created_by)
		VALUES (?, ?, ?, ?)`,
		docID, version, content, createdBy,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

// List 返回某文档的全部版本，新的在前；version 相同按 id 再排，顺序稳定。
func (s *VersionStore) List(ctx context.Context, docID uint64) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, version, content, created_by, created_at
		FROM document_versions WHERE document_id = ?
		ORDER BY version DESC, id DESC`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentVersion
	for rows.Next() {
		var v DocumentVersion
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.Content, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Get 返回某文档某版本的快照。
func (s *VersionStore) Get(ctx context.Context, docID, version uint64) (*DocumentVersion, error) {
	var v DocumentVersion
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, version, content, created_by, created_at
		FROM document_versions WHERE document_id = ? AND version = ?`,
		docID, version,
	).Scan(&v.ID, &v.DocumentID, &v.Version, &v.Content, &v.CreatedBy, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// MaxVersion 返回台账里该文档的最大版本号；没有任何快照时返回 0。
func (s *VersionStore) MaxVersion(ctx context.Context, docID uint64) (uint64, error) {
	var max uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM document_versions WHERE document_id = ?`,
		docID,
	).Scan(&max)
	return max, err
}
