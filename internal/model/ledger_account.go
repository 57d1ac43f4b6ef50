package model

import (
	"errors"
	"time"
)

var (
	ErrInvalidAmount       = errors.New("金额不能为负数")
	ErrInsufficientBalance = errors.New("余额不足")
	ErrEmptyAccountNumber  = errors.New("账号不能为空")
)

// ============================================================================
// 账本账户：每个 (账号, 资产) 一条记录
// ============================================================================
//
// balance 是已结算的可用余额，hold 是"在途"资金：
//   - 入账在途：Deposit 预留，ConfirmDeposit 结算入 balance
//   - 出账在途：Withdraw 从 balance 预扣，ConfirmWithdraw 最终出账
//
// 六个操作都是纯内存状态变换，持久化和加锁由 service 层负责
// ============================================================================

// LedgerAccount 账本账户公共字段与资金操作
type LedgerAccount struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"` // 账号_资产符号
	AccountNumber string    `gorm:"type:varchar(32);index;not null" json:"account_number"`
	AssetSymbol   string    `gorm:"type:varchar(16);index;not null" json:"asset_symbol"`
	AssetType     string    `gorm:"type:varchar(16);not null" json:"asset_type"`
	Balance       float64   `gorm:"not null;default:0" json:"balance"` // 可用余额
	Hold          float64   `gorm:"not null;default:0" json:"hold"`    // 在途金额
	Version       int       `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AccountID 生成账本账户主键：账号 + "_" + 资产符号
func AccountID(accountNumber, symbol string) string {
	return accountNumber + "_" + symbol
}

// Ledger 返回公共账本字段，供接口调用方读取余额
func (a *LedgerAccount) Ledger() *LedgerAccount {
	return a
}

// Deposit 入账预留：hold += amount，等待确认
func (a *LedgerAccount) Deposit(amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	a.Hold += amount
	return nil
}

// Withdraw 出账预扣：balance -= amount, hold += amount
// 余额不足时拒绝，不允许透支
func (a *LedgerAccount) Withdraw(amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if a.Balance < amount {
		return ErrInsufficientBalance
	}
	a.Balance -= amount
	a.Hold += amount
	return nil
}

// ConfirmDeposit 入账结算：hold -= amount, balance += amount
func (a *LedgerAccount) ConfirmDeposit(amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	a.Hold -= amount
	a.Balance += amount
	return nil
}

// ConfirmWithdraw 出账结算：hold -= amount，资金离开系统
func (a *LedgerAccount) ConfirmWithdraw(amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	a.Hold -= amount
	return nil
}

// CancelDeposit 拒绝入账：hold -= amount，不入 balance
func (a *LedgerAccount) CancelDeposit(amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	a.Hold -= amount
	return nil
}

// CancelWithdraw 撤销出账预扣：hold -= amount, balance += amount
func (a *LedgerAccount) CancelWithdraw(amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	a.Hold -= amount
	a.Balance += amount
	return nil
}

// FungibleAccount 资金操作能力集，法币账户与加密账户共同实现
type FungibleAccount interface {
	Ledger() *LedgerAccount
	Deposit(amount float64) error
	Withdraw(amount float64) error
	ConfirmDeposit(amount float64) error
	ConfirmWithdraw(amount float64) error
	CancelDeposit(amount float64) error
	CancelWithdraw(amount float64) error
}

// FiatAccount 法币账户
type FiatAccount struct {
	LedgerAccount
}

func (FiatAccount) TableName() string {
	return "fiat_account"
}

// NewFiatAccount 创建法币账户，余额从零开始
func NewFiatAccount(accountNumber string, asset Asset) (*FiatAccount, error) {
	if accountNumber == "" {
		return nil, ErrEmptyAccountNumber
	}
	if asset.Type != AssetTypeFiat {
		return nil, errors.New("资产类型必须为 FIAT")
	}
	return &FiatAccount{LedgerAccount: LedgerAccount{
		ID:            AccountID(accountNumber, asset.Symbol),
		AccountNumber: accountNumber,
		AssetSymbol:   asset.Symbol,
		AssetType:     AssetTypeFiat,
	}}, nil
}

// CryptoAccount 加密资产账户，额外携带链信息，资金语义与法币一致
type CryptoAccount struct {
	LedgerAccount
	Network        string `gorm:"type:varchar(32);not null" json:"network"`
	AddressInChain string `gorm:"type:varchar(64);not null" json:"address_in_chain"`
}

func (CryptoAccount) TableName() string {
	return "crypto_account"
}

// NewCryptoAccount 创建加密资产账户
func NewCryptoAccount(accountNumber string, asset Asset, network, address string) (*CryptoAccount, error) {
	if accountNumber == "" {
		return nil, ErrEmptyAccountNumber
	}
	if asset.Type != AssetTypeCrypto {
		return nil, errors.New("资产类型必须为 CRYPTO")
	}
	return &CryptoAccount{
		LedgerAccount: LedgerAccount{
			ID:            AccountID(accountNumber, asset.Symbol),
			AccountNumber: accountNumber,
			AssetSymbol:   asset.Symbol,
			AssetType:     AssetTypeCrypto,
		},
		Network:        network,
		AddressInChain: address,
	}, nil
}
