package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd() Asset {
	return Asset{Name: "US Dollar", Symbol: "USD", Type: AssetTypeFiat}
}

func btc() Asset {
	return Asset{Name: "Bitcoin", Symbol: "BTC", Type: AssetTypeCrypto}
}

func TestNewFiatAccount(t *testing.T) {
	acc, err := NewFiatAccount("ACC001", usd())
	require.NoError(t, err)

	assert.Equal(t, "ACC001_USD", acc.ID)
	assert.Equal(t, "ACC001", acc.AccountNumber)
	assert.Equal(t, "USD", acc.AssetSymbol)
	assert.Equal(t, AssetTypeFiat, acc.AssetType)
	assert.Zero(t, acc.Balance)
	assert.Zero(t, acc.Hold)
}

func TestNewFiatAccount_EmptyAccountNumber(t *testing.T) {
	_, err := NewFiatAccount("", usd())
	assert.ErrorIs(t, err, ErrEmptyAccountNumber)
}

func TestNewFiatAccount_WrongAssetType(t *testing.T) {
	_, err := NewFiatAccount("ACC001", btc())
	assert.Error(t, err)
}

func TestNewCryptoAccount(t *testing.T) {
	acc, err := NewCryptoAccount("ACC001", btc(), "bitcoin", "1A1zP1eP5QGefi2DMPTfTL5SLmv7Divf")
	require.NoError(t, err)

	assert.Equal(t, "ACC001_BTC", acc.ID)
	assert.Equal(t, "bitcoin", acc.Network)
	assert.Equal(t, AssetTypeCrypto, acc.AssetType)

	_, err = NewCryptoAccount("ACC001", usd(), "bitcoin", "addr")
	assert.Error(t, err)
}

// 六个资金操作对 balance / hold 的影响
func TestLedgerAccount_Operations(t *testing.T) {
	tests := []struct {
		name        string
		balance     float64
		hold        float64
		op          func(a *LedgerAccount) error
		wantErr     error
		wantBalance float64
		wantHold    float64
	}{
		{
			name:        "入账预留只进在途",
			balance:     100, hold: 0,
			op:          func(a *LedgerAccount) error { return a.Deposit(50) },
			wantBalance: 100, wantHold: 50,
		},
		{
			name:        "出账预扣从余额转入在途",
			balance:     100, hold: 0,
			op:          func(a *LedgerAccount) error { return a.Withdraw(30) },
			wantBalance: 70, wantHold: 30,
		},
		{
			name:    "余额不足拒绝预扣",
			balance: 10, hold: 0,
			op:      func(a *LedgerAccount) error { return a.Withdraw(30) },
			wantErr: ErrInsufficientBalance,
			wantBalance: 10, wantHold: 0,
		},
		{
			name:        "入账结算从在途入余额",
			balance:     100, hold: 50,
			op:          func(a *LedgerAccount) error { return a.ConfirmDeposit(50) },
			wantBalance: 150, wantHold: 0,
		},
		{
			name:        "出账结算只减在途",
			balance:     70, hold: 30,
			op:          func(a *LedgerAccount) error { return a.ConfirmWithdraw(30) },
			wantBalance: 70, wantHold: 0,
		},
		{
			name:        "拒绝入账只减在途",
			balance:     100, hold: 50,
			op:          func(a *LedgerAccount) error { return a.CancelDeposit(50) },
			wantBalance: 100, wantHold: 0,
		},
		{
			name:        "撤销出账退回余额",
			balance:     70, hold: 30,
			op:          func(a *LedgerAccount) error { return a.CancelWithdraw(30) },
			wantBalance: 100, wantHold: 0,
		},
		{
			name:    "负数金额一律拒绝",
			balance: 100, hold: 0,
			op:      func(a *LedgerAccount) error { return a.Deposit(-1) },
			wantErr: ErrInvalidAmount,
			wantBalance: 100, wantHold: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &LedgerAccount{Balance: tt.balance, Hold: tt.hold}
			err := tt.op(a)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantBalance, a.Balance)
			assert.Equal(t, tt.wantHold, a.Hold)
		})
	}
}

// 入账全流程：预留 -> 结算 与 预留 -> 拒绝
func TestLedgerAccount_DepositRoundTrip(t *testing.T) {
	a := &LedgerAccount{Balance: 100}

	require.NoError(t, a.Deposit(40))
	require.NoError(t, a.ConfirmDeposit(40))
	assert.Equal(t, 140.0, a.Balance)
	assert.Equal(t, 0.0, a.Hold)

	require.NoError(t, a.Deposit(40))
	require.NoError(t, a.CancelDeposit(40))
	assert.Equal(t, 140.0, a.Balance)
	assert.Equal(t, 0.0, a.Hold)
}

// 出账全流程：预扣 -> 结算 与 预扣 -> 撤销
func TestLedgerAccount_WithdrawRoundTrip(t *testing.T) {
	a := &LedgerAccount{Balance: 100}

	require.NoError(t, a.Withdraw(40))
	require.NoError(t, a.ConfirmWithdraw(40))
	assert.Equal(t, 60.0, a.Balance)
	assert.Equal(t, 0.0, a.Hold)

	require.NoError(t, a.Withdraw(40))
	require.NoError(t, a.CancelWithdraw(40))
	assert.Equal(t, 60.0, a.Balance)
	assert.Equal(t, 0.0, a.Hold)
}
