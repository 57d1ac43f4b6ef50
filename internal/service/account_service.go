package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/pkg/idgen"
)

// Balance 单一资产的余额视图
type Balance struct {
	AssetSymbol string  `json:"asset_symbol"`
	Balance     float64 `json:"balance"`
	Hold        float64 `json:"hold"`
}

// AccountService 单账户出入金流程
// 与转账协调器共享同一套 持锁 -> 变更 -> 原子落库 模式，
// 只是每次只涉及一个账本账户
type AccountService struct {
	uow     repository.UnitOfWork
	locker  lock.AccountLocker
	catalog *model.AssetCatalog
	cfg     *config.Config
}

func NewAccountService(uow repository.UnitOfWork, locker lock.AccountLocker, catalog *model.AssetCatalog, cfg *config.Config) *AccountService {
	return &AccountService{
		uow:     uow,
		locker:  locker,
		catalog: catalog,
		cfg:     cfg,
	}
}

// FundingRequest 入金/出金请求
type FundingRequest struct {
	RequestID     string  `json:"request_id" binding:"required"`
	AccountNumber string  `json:"account_number" binding:"required"`
	Symbol        string  `json:"symbol" binding:"required"`
	Amount        float64 `json:"amount" binding:"required"`
}

// Deposit 外部入金：资金先进入在途，等待确认
// 同时创建一条 PENDING 的 DEPOSIT 交易记录
func (s *AccountService) Deposit(ctx context.Context, req *FundingRequest) (*model.Transaction, error) {
	return s.fund(ctx, req, model.TransactionTypeDeposit)
}

// Withdraw 外部出金：从可用余额预扣到在途，等待最终出账
func (s *AccountService) Withdraw(ctx context.Context, req *FundingRequest) (*model.Transaction, error) {
	return s.fund(ctx, req, model.TransactionTypeWithdraw)
}

func (s *AccountService) fund(ctx context.Context, req *FundingRequest, txType string) (*model.Transaction, error) {
	if req.Amount < 0 {
		return nil, model.ErrInvalidAmount
	}
	asset := s.catalog.GetBySymbol(req.Symbol)
	if asset == nil {
		return nil, ErrAssetNotFound
	}
	if _, err := s.uow.Stores().Wallet.GetByAccountNumber(ctx, req.AccountNumber); err != nil {
		return nil, err
	}

	// 幂等校验
	existing, err := s.uow.Stores().Tx.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	accountID := model.AccountID(req.AccountNumber, req.Symbol)
	release, err := s.locker.LockAccounts(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer release()

	existing, err = s.uow.Stores().Tx.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	store := s.uow.Stores().ForAssetType(asset.Type)
	acc, err := store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var trans *model.Transaction
	switch txType {
	case model.TransactionTypeDeposit:
		if err := acc.Deposit(req.Amount); err != nil {
			return nil, err
		}
		trans = model.NewDeposit(idgen.GenerateTxID(), req.RequestID, req.Symbol, req.Amount,
			req.AccountNumber, s.cfg.Business.ConfirmationsRequired)
	case model.TransactionTypeWithdraw:
		if err := acc.Withdraw(req.Amount); err != nil {
			return nil, err
		}
		trans = model.NewWithdraw(idgen.GenerateTxID(), req.RequestID, req.Symbol, req.Amount,
			req.AccountNumber, s.cfg.Business.ConfirmationsRequired)
	default:
		return nil, fmt.Errorf("不支持的交易类型: %s", txType)
	}

	err = s.uow.WithTransaction(ctx, func(st repository.Stores) error {
		if err := st.ForAssetType(asset.Type).Update(ctx, acc); err != nil {
			return fmt.Errorf("更新账户失败: %w", err)
		}
		if err := st.Tx.Create(ctx, trans); err != nil {
			return fmt.Errorf("创建交易记录失败: %w", err)
		}
		return s.addLedgerEvent(ctx, st, acc, txType, req.Amount)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("%s 已受理: account=%s, amount=%v", txType, accountID, req.Amount)
	return trans, nil
}

// ConfirmDeposit 入金结算：在途转入可用余额
func (s *AccountService) ConfirmDeposit(ctx context.Context, accountNumber, symbol string, amount float64) error {
	return s.applyHoldOp(ctx, accountNumber, symbol, amount, "CONFIRM_DEPOSIT")
}

// ConfirmWithdraw 出金结算：在途资金最终离开系统
func (s *AccountService) ConfirmWithdraw(ctx context.Context, accountNumber, symbol string, amount float64) error {
	return s.applyHoldOp(ctx, accountNumber, symbol, amount, "CONFIRM_WITHDRAW")
}

// CancelDeposit 拒绝入金：移除在途预留，不入余额
func (s *AccountService) CancelDeposit(ctx context.Context, accountNumber, symbol string, amount float64) error {
	return s.applyHoldOp(ctx, accountNumber, symbol, amount, "CANCEL_DEPOSIT")
}

// CancelWithdraw 撤销出金：预扣退回可用余额
func (s *AccountService) CancelWithdraw(ctx context.Context, accountNumber, symbol string, amount float64) error {
	return s.applyHoldOp(ctx, accountNumber, symbol, amount, "CANCEL_WITHDRAW")
}

func (s *AccountService) applyHoldOp(ctx context.Context, accountNumber, symbol string, amount float64, op string) error {
	if amount < 0 {
		return model.ErrInvalidAmount
	}
	asset := s.catalog.GetBySymbol(symbol)
	if asset == nil {
		return ErrAssetNotFound
	}
	if _, err := s.uow.Stores().Wallet.GetByAccountNumber(ctx, accountNumber); err != nil {
		return err
	}

	accountID := model.AccountID(accountNumber, symbol)
	release, err := s.locker.LockAccounts(ctx, accountID)
	if err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer release()

	store := s.uow.Stores().ForAssetType(asset.Type)
	acc, err := store.Get(ctx, accountID)
	if err != nil {
		return err
	}

	switch op {
	case "CONFIRM_DEPOSIT":
		err = acc.ConfirmDeposit(amount)
	case "CONFIRM_WITHDRAW":
		err = acc.ConfirmWithdraw(amount)
	case "CANCEL_DEPOSIT":
		err = acc.CancelDeposit(amount)
	case "CANCEL_WITHDRAW":
		err = acc.CancelWithdraw(amount)
	default:
		err = fmt.Errorf("不支持的操作: %s", op)
	}
	if err != nil {
		return err
	}

	err = s.uow.WithTransaction(ctx, func(st repository.Stores) error {
		if err := st.ForAssetType(asset.Type).Update(ctx, acc); err != nil {
			return fmt.Errorf("更新账户失败: %w", err)
		}
		return s.addLedgerEvent(ctx, st, acc, op, amount)
	})
	if err != nil {
		return err
	}

	log.Printf("%s 完成: account=%s, amount=%v", op, accountID, amount)
	return nil
}

// Balances 汇总某账号在法币和加密两张账本表里的全部余额
func (s *AccountService) Balances(ctx context.Context, accountNumber string) (map[string]Balance, error) {
	if _, err := s.uow.Stores().Wallet.GetByAccountNumber(ctx, accountNumber); err != nil {
		return nil, err
	}

	balances := make(map[string]Balance)
	stores := s.uow.Stores()
	for _, store := range []repository.AccountStore{stores.Fiat, stores.Crypto} {
		accounts, err := store.ListByAccountNumber(ctx, accountNumber)
		if err != nil {
			return nil, err
		}
		for _, acc := range accounts {
			l := acc.Ledger()
			balances[l.AssetSymbol] = Balance{
				AssetSymbol: l.AssetSymbol,
				Balance:     l.Balance,
				Hold:        l.Hold,
			}
		}
	}
	return balances, nil
}

// addLedgerEvent 在当前事务内写入账本变动事件
func (s *AccountService) addLedgerEvent(ctx context.Context, st repository.Stores, acc model.FungibleAccount, op string, amount float64) error {
	l := acc.Ledger()
	payload, _ := json.Marshal(map[string]interface{}{
		"account_id":   l.ID,
		"asset_symbol": l.AssetSymbol,
		"operation":    op,
		"amount":       amount,
		"balance":      l.Balance,
		"hold":         l.Hold,
		"event_time":   time.Now().UTC().Format(time.RFC3339),
	})
	msg := &model.OutboxMessage{
		MessageKey: l.ID,
		Topic:      s.cfg.Kafka.Topic.LedgerEvents,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := st.Outbox.Add(ctx, msg); err != nil {
		return fmt.Errorf("写入事件消息失败: %w", err)
	}
	return nil
}
