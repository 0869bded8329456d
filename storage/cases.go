package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// CaseRepository 案件仓储
type CaseRepository struct {
	db *gorm.DB
}

// GetOrCreateByIdentity 按外部标识获取案件，不存在时以 initialPhase 创建。
// created 表示本次调用创建了记录。
func (r *CaseRepository) GetOrCreateByIdentity(ctx context.Context, identity, initialPhase string) (*Case, bool, error) {
	existing, err := r.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	c := &Case{Identity: identity, Phase: initialPhase}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		// 并发创建撞上唯一索引时重读一次
		if again, findErr := r.FindByIdentity(ctx, identity); findErr == nil && again != nil {
			return again, false, nil
		}
		return nil, false, fail("cases.create", err)
	}
	return c, true, nil
}

// Get 按 ID 读取
func (r *CaseRepository) Get(ctx context.Context, id uint) (*Case, error) {
	var c Case
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, fail("cases.get", err)
	}
	return &c, nil
}

// FindByIdentity 按外部标识读取；不存在返回 nil, nil
func (r *CaseRepository) FindByIdentity(ctx context.Context, identity string) (*Case, error) {
	var c Case
	err := r.db.WithContext(ctx).Where("identity = ?", identity).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("cases.find", err)
	}
	return &c, nil
}

// Update 保存案件全部字段
func (r *CaseRepository) Update(ctx context.Context, c *Case) error {
	return fail("cases.update", r.db.WithContext(ctx).Save(c).Error)
}
