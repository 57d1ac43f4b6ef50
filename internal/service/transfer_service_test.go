package service

import (
	"context"
	"errors"
	"testing"

	"bankledger/internal/config"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				TransactionEvents: "ledger.transaction.events",
				LedgerEvents:      "ledger.account.events",
			},
		},
		Business: config.BusinessConfig{
			TransferFeeRate:       0.01,
			ConfirmationsRequired: 1,
			PendingTimeoutMinutes: 30,
			MaxRetryCount:         3,
			DefaultAssets:         []string{"USD", "EUR", "BTC"},
		},
	}
}

// newTransferFixture 两个各持有 USD 账户的钱包，A 侧有初始余额
func newTransferFixture(t *testing.T, balanceA float64) (*TransferService, *memUnitOfWork) {
	t.Helper()

	uow := newMemUnitOfWork()
	catalog := model.NewAssetCatalog()
	ctx := context.Background()

	for _, accountNumber := range []string{"ACC-A", "ACC-B"} {
		require.NoError(t, uow.Stores().Wallet.Create(ctx, &model.Wallet{
			AccountNumber: accountNumber,
			FiatSymbols:   []string{"USD"},
		}))
		acc, err := model.NewFiatAccount(accountNumber, *catalog.GetBySymbol("USD"))
		require.NoError(t, err)
		require.NoError(t, uow.Stores().Fiat.Create(ctx, acc))
	}

	a, err := uow.Stores().Fiat.Get(ctx, "ACC-A_USD")
	require.NoError(t, err)
	require.NoError(t, a.Deposit(balanceA))
	require.NoError(t, a.ConfirmDeposit(balanceA))
	require.NoError(t, uow.Stores().Fiat.Update(ctx, a))

	svc := NewTransferService(uow, lock.NewLocalAccountLocker(), catalog, testConfig())
	return svc, uow
}

func getLedger(t *testing.T, uow *memUnitOfWork, id string) *model.LedgerAccount {
	t.Helper()
	acc, err := uow.Stores().Fiat.Get(context.Background(), id)
	require.NoError(t, err)
	return acc.Ledger()
}

func TestTransferService_Submit(t *testing.T) {
	svc, uow := newTransferFixture(t, 1000)
	ctx := context.Background()

	trans, err := svc.Submit(ctx, &SubmitRequest{
		RequestID: "req-1",
		Symbol:    "USD",
		Amount:    100,
		From:      "ACC-A",
		To:        "ACC-B",
		Memo:      "lunch",
	})
	require.NoError(t, err)

	assert.Equal(t, model.TransactionStatusPending, trans.Status)
	assert.InDelta(t, 100, trans.Amount, 1e-9)
	assert.InDelta(t, 101, trans.TotalAmount, 1e-9) // 1% 手续费
	require.Len(t, trans.Fees, 1)
	assert.Equal(t, FeeReasonTransfer, trans.Fees[0].Reason)

	// 转出方按总额预扣，转入方按净额预留
	from := getLedger(t, uow, "ACC-A_USD")
	assert.InDelta(t, 899, from.Balance, 1e-9)
	assert.InDelta(t, 101, from.Hold, 1e-9)

	to := getLedger(t, uow, "ACC-B_USD")
	assert.InDelta(t, 0, to.Balance, 1e-9)
	assert.InDelta(t, 100, to.Hold, 1e-9)

	// 生命周期事件已随事务写入发件箱
	assert.Len(t, uow.state.outbox, 1)
}

func TestTransferService_Submit_Idempotent(t *testing.T) {
	svc, uow := newTransferFixture(t, 1000)
	ctx := context.Background()

	req := &SubmitRequest{RequestID: "req-1", Symbol: "USD", Amount: 100, From: "ACC-A", To: "ACC-B"}
	first, err := svc.Submit(ctx, req)
	require.NoError(t, err)

	// 同一 request_id 重复提交返回原交易，余额不再变动
	second, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.TxID, second.TxID)

	from := getLedger(t, uow, "ACC-A_USD")
	assert.InDelta(t, 899, from.Balance, 1e-9)
	assert.InDelta(t, 101, from.Hold, 1e-9)
}

func TestTransferService_Submit_Rejections(t *testing.T) {
	svc, uow := newTransferFixture(t, 50)
	ctx := context.Background()

	// 余额不足
	_, err := svc.Submit(ctx, &SubmitRequest{RequestID: "req-1", Symbol: "USD", Amount: 100, From: "ACC-A", To: "ACC-B"})
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	// 未知资产
	_, err = svc.Submit(ctx, &SubmitRequest{RequestID: "req-2", Symbol: "XYZ", Amount: 10, From: "ACC-A", To: "ACC-B"})
	assert.ErrorIs(t, err, ErrAssetNotFound)

	// 负数金额
	_, err = svc.Submit(ctx, &SubmitRequest{RequestID: "req-3", Symbol: "USD", Amount: -10, From: "ACC-A", To: "ACC-B"})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	// 自转账
	_, err = svc.Submit(ctx, &SubmitRequest{RequestID: "req-5", Symbol: "USD", Amount: 10, From: "ACC-A", To: "ACC-A"})
	assert.ErrorIs(t, err, ErrSameAccount)

	// 账户不存在
	_, err = svc.Submit(ctx, &SubmitRequest{RequestID: "req-4", Symbol: "EUR", Amount: 10, From: "ACC-A", To: "ACC-B"})
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)

	// 拒绝的提交不留下任何痕迹
	from := getLedger(t, uow, "ACC-A_USD")
	assert.InDelta(t, 50, from.Balance, 1e-9)
	assert.InDelta(t, 0, from.Hold, 1e-9)
	assert.Empty(t, uow.state.trans)
}

func TestTransferService_FullLifecycle_Complete(t *testing.T) {
	svc, uow := newTransferFixture(t, 1000)
	ctx := context.Background()

	trans, err := svc.Submit(ctx, &SubmitRequest{RequestID: "req-1", Symbol: "USD", Amount: 100, From: "ACC-A", To: "ACC-B"})
	require.NoError(t, err)

	trans, err = svc.Confirm(ctx, trans.TxID, "ops-desk")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusConfirmed, trans.Status)

	trans, err = svc.Complete(ctx, trans.TxID, "EXT-789")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCompleted, trans.Status)
	assert.Equal(t, "EXT-789", trans.ExternalID)
	assert.True(t, trans.VerifyAuditLog())

	// 净额入转入方，手续费离开系统
	from := getLedger(t, uow, "ACC-A_USD")
	assert.InDelta(t, 899, from.Balance, 1e-9)
	assert.InDelta(t, 0, from.Hold, 1e-9)

	to := getLedger(t, uow, "ACC-B_USD")
	assert.InDelta(t, 100, to.Balance, 1e-9)
	assert.InDelta(t, 0, to.Hold, 1e-9)
}

func TestTransferService_Cancel_RestoresReservation(t *testing.T) {
	svc, uow := newTransferFixture(t, 1000)
	ctx := context.Background()

	trans, err := svc.Submit(ctx, &SubmitRequest{RequestID: "req-1", Symbol: "USD", Amount: 100, From: "ACC-A", To: "ACC-B"})
	require.NoError(t, err)

	trans, err = svc.Cancel(ctx, trans.TxID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCancelled, trans.Status)

	// 转出方完整恢复（含手续费）
	from := getLedger(t, uow, "ACC-A_USD")
	assert.InDelta(t, 1000, from.Balance, 1e-9)
	assert.InDelta(t, 0, from.Hold, 1e-9)

	// 转入方按总额回退，在途差出手续费部分
	to := getLedger(t, uow, "ACC-B_USD")
	assert.InDelta(t, 0, to.Balance, 1e-9)
	assert.InDelta(t, -1, to.Hold, 1e-9)
}

func TestTransferService_Fail_AfterConfirm(t *testing.T) {
	svc, uow := newTransferFixture(t, 1000)
	ctx := context.Background()

	trans, err := svc.Submit(ctx, &SubmitRequest{RequestID: "req-1", Symbol: "USD", Amount: 100, From: "ACC-A", To: "ACC-B"})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, trans.TxID, "ops-desk")
	require.NoError(t, err)

	trans, err = svc.Fail(ctx, trans.TxID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, trans.Status)

	from := getLedger(t, uow, "ACC-A_USD")
	assert.InDelta(t, 1000, from.Balance, 1e-9)
	assert.InDelta(t, 0, from.Hold, 1e-9)
}

func TestTransferService_InvalidLifecycleOrder(t *testing.T) {
	svc, _ := newTransferFixture(t, 1000)
	ctx := context.Background()

	trans, err := svc.Submit(ctx, &SubmitRequest{RequestID: "req-1", Symbol: "USD", Amount: 100, From: "ACC-A", To: "ACC-B"})
	require.NoError(t, err)

	// PENDING 不能直接完结或失败
	_, err = svc.Complete(ctx, trans.TxID, "EXT-1")
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
	_, err = svc.Fail(ctx, trans.TxID)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)

	// CONFIRMED 不能取消
	_, err = svc.Confirm(ctx, trans.TxID, "ops-desk")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, trans.TxID)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)

	// 重复确认
	_, err = svc.Confirm(ctx, trans.TxID, "ops-desk")
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
}

// 提交途中任何一张表写入失败，所有表一起回滚
func TestTransferService_Submit_AbortsAllOnFailure(t *testing.T) {
	injected := errors.New("写入失败")

	tests := []struct {
		name   string
		inject func(u *memUnitOfWork)
	}{
		{"交易表写入失败", func(u *memUnitOfWork) { u.fail.txCreate = injected }},
		{"账本表写入失败", func(u *memUnitOfWork) { u.fail.accountUpdate = injected }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, uow := newTransferFixture(t, 1000)
			tt.inject(uow)

			_, err := svc.Submit(context.Background(), &SubmitRequest{
				RequestID: "req-1", Symbol: "USD", Amount: 100, From: "ACC-A", To: "ACC-B",
			})
			require.ErrorIs(t, err, injected)

			// 两个账户和交易表都保持原状
			from := getLedger(t, uow, "ACC-A_USD")
			assert.InDelta(t, 1000, from.Balance, 1e-9)
			assert.InDelta(t, 0, from.Hold, 1e-9)

			to := getLedger(t, uow, "ACC-B_USD")
			assert.InDelta(t, 0, to.Hold, 1e-9)

			assert.Empty(t, uow.state.trans)
			assert.Empty(t, uow.state.outbox)
		})
	}
}
