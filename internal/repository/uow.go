package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrAtomicCommitFailure = errors.New("原子提交失败")

// GormUnitOfWork 基于单个 MySQL 事务实现多表原子提交
// 交易表、法币账本表、加密账本表、发件箱表在同一个事务里
// 一起提交或一起回滚
type GormUnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) Stores() Stores {
	return newStores(u.db)
}

func (u *GormUnitOfWork) WithTransaction(ctx context.Context, fn func(s Stores) error) error {
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(newStores(tx)); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			// 回滚本身失败必须显式暴露，绝不能静默吞掉
			return fmt.Errorf("%w: 回滚失败: %v, 原错误: %v", ErrAtomicCommitFailure, rbErr, err)
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: %v", ErrAtomicCommitFailure, err)
	}
	return nil
}

func newStores(db *gorm.DB) Stores {
	return Stores{
		Fiat:   NewFiatAccountRepository(db),
		Crypto: NewCryptoAccountRepository(db),
		Tx:     NewTransactionRepository(db),
		Wallet: NewWalletRepository(db),
		Outbox: NewOutboxRepository(db),
	}
}
