package repository

import (
	"context"
	"errors"
	"time"

	"bankledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = errors.New("交易不存在")
	ErrDuplicateRequest    = errors.New("重复请求")
)

// TransactionRepository 交易记录表
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, trans *model.Transaction) error {
	return r.db.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTxID(ctx context.Context, txID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("tx_id = ?", txID).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// GetByRequestID 按幂等ID查询，不存在时返回 nil 而非错误
func (r *TransactionRepository) GetByRequestID(ctx context.Context, requestID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) Update(ctx context.Context, trans *model.Transaction) error {
	result := r.db.WithContext(ctx).
		Where("tx_id = ?", trans.TxID).
		Save(trans)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) ListByWallet(ctx context.Context, wallet string, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("from_wallet = ? OR to_wallet = ?", wallet, wallet)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// ListPendingBefore 查询在指定时间之前创建、仍处于 PENDING 的交易
func (r *TransactionRepository) ListPendingBefore(ctx context.Context, txType string, before time.Time, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND created_at < ?", txType, model.TransactionStatusPending, before).
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
