package repository

import (
	"context"
	"errors"

	"bankledger/internal/model"

	"gorm.io/gorm"
)

var ErrWalletNotFound = errors.New("钱包不存在")

// WalletRepository 钱包表
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, w *model.Wallet) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WalletRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*model.Wallet, error) {
	var w model.Wallet
	err := r.db.WithContext(ctx).Where("account_number = ?", accountNumber).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}
