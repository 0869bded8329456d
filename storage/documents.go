package storage

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentRepository 支持文件仓储
type DocumentRepository struct {
	db *gorm.DB
}

// Add 保存文件记录；ID 为空时生成 UUID
func (r *DocumentRepository) Add(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return fail("documents.add", r.db.WithContext(ctx).Create(d).Error)
}

// ListByCase 返回案件的所有文件，按接收时间排序
func (r *DocumentRepository) ListByCase(ctx context.Context, caseID uint) ([]Document, error) {
	var docs []Document
	err := r.db.WithContext(ctx).
		Omit("content").
		Where("case_id = ?", caseID).
		Order("created_at ASC").
		Find(&docs).Error
	return docs, fail("documents.list", err)
}

// Categories 返回案件已收到的文件类别集合
func (r *DocumentRepository) Categories(ctx context.Context, caseID uint) (map[DocumentCategory]bool, error) {
	var cats []DocumentCategory
	err := r.db.WithContext(ctx).Model(&Document{}).
		Where("case_id = ?", caseID).
		Distinct().
		Pluck("category", &cats).Error
	if err != nil {
		return nil, fail("documents.categories", err)
	}
	out := make(map[DocumentCategory]bool, len(cats))
	for _, c := range cats {
		out[c] = true
	}
	return out, nil
}
