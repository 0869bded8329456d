package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemoryRepository 分层记忆仓储
type MemoryRepository struct {
	db *gorm.DB
}

// =============================================================================
// 即时记忆
// =============================================================================

// AppendImmediate 追加即时记忆并裁剪到最近 limit 条
func (r *MemoryRepository) AppendImmediate(ctx context.Context, caseID uint, content string, limit int) error {
	db := r.db.WithContext(ctx)
	item := &MemoryItem{CaseID: &caseID, Kind: KindImmediate, Content: content}
	if err := db.Create(item).Error; err != nil {
		return fail("memory.append_immediate", err)
	}
	if limit <= 0 {
		return nil
	}

	// 第 limit 新的记录 ID 作为分界，更早的删除
	var cutoff MemoryItem
	err := db.Select("id").
		Where("case_id = ? AND kind = ?", caseID, KindImmediate).
		Order("id DESC").
		Offset(limit - 1).
		Limit(1).
		Take(&cutoff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fail("memory.prune_immediate", err)
	}
	err = db.Where("case_id = ? AND kind = ? AND id < ?", caseID, KindImmediate, cutoff.ID).
		Delete(&MemoryItem{}).Error
	return fail("memory.prune_immediate", err)
}

// ListImmediate 返回即时记忆，按时间正序
func (r *MemoryRepository) ListImmediate(ctx context.Context, caseID uint) ([]MemoryItem, error) {
	var items []MemoryItem
	err := r.db.WithContext(ctx).
		Where("case_id = ? AND kind = ?", caseID, KindImmediate).
		Order("id ASC").
		Find(&items).Error
	return items, fail("memory.list_immediate", err)
}

// =============================================================================
// 会话记忆（每个 key 一行，upsert）
// =============================================================================

// UpsertSession 批量写入会话键值，已存在的 key 覆盖
func (r *MemoryRepository) UpsertSession(ctx context.Context, caseID uint, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]MemoryItem, 0, len(values))
	for k, v := range values {
		key := k
		rows = append(rows, MemoryItem{
			CaseID:     &caseID,
			Kind:       KindSession,
			SessionKey: &key,
			Content:    v,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "case_id"}, {Name: "kind"}, {Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&rows).Error
	return fail("memory.upsert_session", err)
}

// ListSession 返回会话键值快照
func (r *MemoryRepository) ListSession(ctx context.Context, caseID uint) (map[string]string, error) {
	var items []MemoryItem
	err := r.db.WithContext(ctx).
		Where("case_id = ? AND kind = ?", caseID, KindSession).
		Find(&items).Error
	if err != nil {
		return nil, fail("memory.list_session", err)
	}
	out := make(map[string]string, len(items))
	for _, it := range items {
		if it.SessionKey != nil {
			out[*it.SessionKey] = it.Content
		}
	}
	return out, nil
}

// =============================================================================
// 情节记忆与共享语义知识
// =============================================================================

// AddEpisodic 追加一条对话摘要；embedding 可为 nil
func (r *MemoryRepository) AddEpisodic(ctx context.Context, caseID uint, summary string, embedding []float32) (*MemoryItem, error) {
	item := &MemoryItem{CaseID: &caseID, Kind: KindEpisodic, Content: summary, Embedding: embedding}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fail("memory.add_episodic", err)
	}
	return item, nil
}

// RecentEpisodic 返回最近 k 条摘要，最新在前
func (r *MemoryRepository) RecentEpisodic(ctx context.Context, caseID uint, k int) ([]MemoryItem, error) {
	var items []MemoryItem
	err := r.db.WithContext(ctx).
		Where("case_id = ? AND kind = ?", caseID, KindEpisodic).
		Order("id DESC").
		Limit(k).
		Find(&items).Error
	return items, fail("memory.recent_episodic", err)
}

// AddSemantic 写入一条共享知识
func (r *MemoryRepository) AddSemantic(ctx context.Context, title, content string, embedding []float32) (*MemoryItem, error) {
	item := &MemoryItem{Kind: KindSemantic, Title: &title, Content: content, Embedding: embedding}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fail("memory.add_semantic", err)
	}
	return item, nil
}

// RecentSemantic 返回最近 k 条共享知识，最新在前
func (r *MemoryRepository) RecentSemantic(ctx context.Context, k int) ([]MemoryItem, error) {
	var items []MemoryItem
	err := r.db.WithContext(ctx).
		Where("kind = ?", KindSemantic).
		Order("id DESC").
		Limit(k).
		Find(&items).Error
	return items, fail("memory.recent_semantic", err)
}

// ListWithEmbeddings 返回某类型所有带向量的条目，用于启动时预热向量索引
func (r *MemoryRepository) ListWithEmbeddings(ctx context.Context, kind MemoryKind) ([]MemoryItem, error) {
	var items []MemoryItem
	err := r.db.WithContext(ctx).
		Where("kind = ? AND embedding IS NOT NULL", kind).
		Order("id ASC").
		Find(&items).Error
	return items, fail("memory.list_embeddings", err)
}

// GetByIDs 按 ID 读取条目，保持 ids 的顺序，缺失的跳过
func (r *MemoryRepository) GetByIDs(ctx context.Context, ids []uint) ([]MemoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []MemoryItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, fail("memory.get_by_ids", err)
	}
	byID := make(map[uint]MemoryItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	out := make([]MemoryItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// CountByKind 统计某案件某类记忆条数
func (r *MemoryRepository) CountByKind(ctx context.Context, caseID uint, kind MemoryKind) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&MemoryItem{}).
		Where("case_id = ? AND kind = ?", caseID, kind).
		Count(&n).Error
	return n, fail("memory.count", err)
}
