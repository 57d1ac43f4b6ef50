package repository

import (
	"context"
	"errors"
	"fmt"

	"bankledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("账本账户不存在")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

// ============================================================================
// 账本账户仓储
// ============================================================================
//
// 写入用乐观锁：WHERE id = ? AND version = ?，影响行数为 0 说明
// 版本冲突或记录不存在。service 层在计算期间持有按账户维度的
// 分布式锁，这里的版本检查是提交时的最后一道防线，两个机制
// 配合才能防止丢失更新
// ============================================================================

// FiatAccountRepository 法币账本表
type FiatAccountRepository struct {
	db *gorm.DB
}

func NewFiatAccountRepository(db *gorm.DB) *FiatAccountRepository {
	return &FiatAccountRepository{db: db}
}

func (r *FiatAccountRepository) Get(ctx context.Context, id string) (model.FungibleAccount, error) {
	var acc model.FiatAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (r *FiatAccountRepository) Create(ctx context.Context, acc model.FungibleAccount) error {
	fiat, ok := acc.(*model.FiatAccount)
	if !ok {
		return fmt.Errorf("账户类型错误: 期望法币账户, 实际 %T", acc)
	}
	return r.db.WithContext(ctx).Create(fiat).Error
}

func (r *FiatAccountRepository) Update(ctx context.Context, acc model.FungibleAccount) error {
	fiat, ok := acc.(*model.FiatAccount)
	if !ok {
		return fmt.Errorf("账户类型错误: 期望法币账户, 实际 %T", acc)
	}
	return updateWithVersion(ctx, r.db, &model.FiatAccount{}, fiat.Ledger())
}

func (r *FiatAccountRepository) ListByAccountNumber(ctx context.Context, accountNumber string) ([]model.FungibleAccount, error) {
	var accounts []model.FiatAccount
	err := r.db.WithContext(ctx).Where("account_number = ?", accountNumber).Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.FungibleAccount, 0, len(accounts))
	for i := range accounts {
		out = append(out, &accounts[i])
	}
	return out, nil
}

// CryptoAccountRepository 加密资产账本表
type CryptoAccountRepository struct {
	db *gorm.DB
}

func NewCryptoAccountRepository(db *gorm.DB) *CryptoAccountRepository {
	return &CryptoAccountRepository{db: db}
}

func (r *CryptoAccountRepository) Get(ctx context.Context, id string) (model.FungibleAccount, error) {
	var acc model.CryptoAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (r *CryptoAccountRepository) Create(ctx context.Context, acc model.FungibleAccount) error {
	crypto, ok := acc.(*model.CryptoAccount)
	if !ok {
		return fmt.Errorf("账户类型错误: 期望加密账户, 实际 %T", acc)
	}
	return r.db.WithContext(ctx).Create(crypto).Error
}

func (r *CryptoAccountRepository) Update(ctx context.Context, acc model.FungibleAccount) error {
	crypto, ok := acc.(*model.CryptoAccount)
	if !ok {
		return fmt.Errorf("账户类型错误: 期望加密账户, 实际 %T", acc)
	}
	return updateWithVersion(ctx, r.db, &model.CryptoAccount{}, crypto.Ledger())
}

func (r *CryptoAccountRepository) ListByAccountNumber(ctx context.Context, accountNumber string) ([]model.FungibleAccount, error) {
	var accounts []model.CryptoAccount
	err := r.db.WithContext(ctx).Where("account_number = ?", accountNumber).Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.FungibleAccount, 0, len(accounts))
	for i := range accounts {
		out = append(out, &accounts[i])
	}
	return out, nil
}

// updateWithVersion 带版本检查写回资金字段
func updateWithVersion(ctx context.Context, db *gorm.DB, table interface{}, ledger *model.LedgerAccount) error {
	result := db.WithContext(ctx).
		Model(table).
		Where("id = ? AND version = ?", ledger.ID, ledger.Version).
		Updates(map[string]interface{}{
			"balance": ledger.Balance,
			"hold":    ledger.Hold,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := db.WithContext(ctx).Model(table).Where("id = ?", ledger.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrAccountNotFound
		}
		return ErrOptimisticLock
	}

	return nil
}
