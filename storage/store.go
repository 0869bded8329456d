package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/defensoria-civil/divorcios/types"
)

// TxRunner 在事务中执行 fn；可在死锁或序列化失败时重新执行整个 fn
type TxRunner func(ctx context.Context, fn func(tx *gorm.DB) error) error

// Store 聚合各仓储，共享同一个 *gorm.DB（或事务）
type Store struct {
	db        *gorm.DB
	runner    TxRunner
	Cases     *CaseRepository
	Turns     *TurnRepository
	Memory    *MemoryRepository
	Documents *DocumentRepository
}

// New 创建 Store
func New(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		Cases:     &CaseRepository{db: db},
		Turns:     &TurnRepository{db: db},
		Memory:    &MemoryRepository{db: db},
		Documents: &DocumentRepository{db: db},
	}
}

// WithTxRunner 设置 InTx 使用的事务执行器，nil 表示直接使用 gorm 事务.
// fn 可能被执行多次，调用方不得在 fn 中保留上一次执行的副作用.
func (s *Store) WithTxRunner(r TxRunner) *Store {
	s.runner = r
	return s
}

// DB 返回底层连接
func (s *Store) DB() *gorm.DB { return s.db }

// InTx 在一个事务中执行 fn；fn 收到绑定事务的 Store，返回错误时整体回滚。
// 返回的错误统一为 PERSISTENCE_FAILURE。
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	body := func(tx *gorm.DB) error {
		return fn(New(tx))
	}
	var err error
	if s.runner != nil {
		err = s.runner(ctx, body)
	} else {
		err = s.db.WithContext(ctx).Transaction(body)
	}
	if err == nil {
		return nil
	}
	var typed *types.Error
	if errors.As(err, &typed) && typed.Code == types.ErrPersistenceFailure {
		return err
	}
	return types.PersistenceFailure("transaction", err)
}

// AutoMigrate 为 sqlite（开发与测试）创建 Schema；postgres/mysql 使用 internal/migration
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Case{}, &Turn{}, &MemoryItem{}, &Document{})
}

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return types.PersistenceFailure(op, err)
}
