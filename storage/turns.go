package storage

import (
	"context"
	"slices"

	"gorm.io/gorm"
)

// TurnRepository 消息记录仓储（只追加）
type TurnRepository struct {
	db *gorm.DB
}

// Append 追加一条消息
func (r *TurnRepository) Append(ctx context.Context, caseID uint, role Role, content string) (*Turn, error) {
	t := &Turn{CaseID: caseID, Role: role, Content: content}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fail("turns.append", err)
	}
	return t, nil
}

// LastN 返回最近 n 条消息，按时间正序
func (r *TurnRepository) LastN(ctx context.Context, caseID uint, n int) ([]Turn, error) {
	var turns []Turn
	err := r.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("id DESC").
		Limit(n).
		Find(&turns).Error
	if err != nil {
		return nil, fail("turns.last_n", err)
	}
	slices.Reverse(turns)
	return turns, nil
}

// Count 返回案件的消息数
func (r *TurnRepository) Count(ctx context.Context, caseID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Turn{}).Where("case_id = ?", caseID).Count(&n).Error
	return n, fail("turns.count", err)
}
