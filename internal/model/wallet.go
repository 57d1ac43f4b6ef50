package model

import (
	"time"
)

// Wallet 钱包：一个客户账号，开通时为每个默认资产创建账本账户
type Wallet struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	AccountNumber string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"account_number"`
	FiatSymbols   []string  `gorm:"serializer:json" json:"fiat_symbols"`
	CryptoSymbols []string  `gorm:"serializer:json" json:"crypto_symbols"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}
