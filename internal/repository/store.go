package repository

import (
	"context"
	"time"

	"bankledger/internal/model"
)

// ============================================================================
// 存储接口
// ============================================================================
//
// service 层只依赖这些接口；gorm 实现见本包其余文件，
// 单元测试用内存实现替换。
// WithTransaction 把涉及的所有表（交易表、法币账本、加密账本、
// 发件箱）绑定到同一个数据库事务：闭包内任何一步出错，所有
// 写入一起回滚，调用方不可能漏掉某一张表的中止
// ============================================================================

// AccountStore 账本账户存储（法币表和加密表各一个实例）
type AccountStore interface {
	Get(ctx context.Context, id string) (model.FungibleAccount, error)
	Create(ctx context.Context, acc model.FungibleAccount) error
	Update(ctx context.Context, acc model.FungibleAccount) error
	ListByAccountNumber(ctx context.Context, accountNumber string) ([]model.FungibleAccount, error)
}

// TransactionStore 交易记录存储
type TransactionStore interface {
	Create(ctx context.Context, trans *model.Transaction) error
	GetByTxID(ctx context.Context, txID string) (*model.Transaction, error)
	GetByRequestID(ctx context.Context, requestID string) (*model.Transaction, error)
	Update(ctx context.Context, trans *model.Transaction) error
	ListByWallet(ctx context.Context, wallet string, page, pageSize int) ([]*model.Transaction, int64, error)
	ListPendingBefore(ctx context.Context, txType string, before time.Time, limit int) ([]*model.Transaction, error)
}

// WalletStore 钱包存储
type WalletStore interface {
	Create(ctx context.Context, w *model.Wallet) error
	GetByAccountNumber(ctx context.Context, accountNumber string) (*model.Wallet, error)
}

// OutboxStore 发件箱写入口（读取与投递见 OutboxRepository）
type OutboxStore interface {
	Add(ctx context.Context, msg *model.OutboxMessage) error
}

// Stores 绑定到同一事务（或自动提交连接）的一组存储
type Stores struct {
	Fiat   AccountStore
	Crypto AccountStore
	Tx     TransactionStore
	Wallet WalletStore
	Outbox OutboxStore
}

// ForAssetType 按资产类型选择账本表
func (s Stores) ForAssetType(assetType string) AccountStore {
	if assetType == model.AssetTypeCrypto {
		return s.Crypto
	}
	return s.Fiat
}

// UnitOfWork 原子工作单元
type UnitOfWork interface {
	// Stores 返回自动提交的存储集，用于查询和单条读取
	Stores() Stores
	// WithTransaction 在一个数据库事务内执行 fn，
	// fn 返回错误或提交失败时全部回滚
	WithTransaction(ctx context.Context, fn func(s Stores) error) error
}
