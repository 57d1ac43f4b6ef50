package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/pkg/idgen"
)

var (
	ErrAssetNotFound = errors.New("不支持的资产")
	ErrSameAccount   = errors.New("转出方和转入方不能相同")
)

// FeeReasonTransfer 内部转账手续费名目
const FeeReasonTransfer = "Tx Fee"

// ============================================================================
// 转账协调器
// ============================================================================
//
// 每个操作都遵循同一套流程：
//   解析资产 -> 按账户加锁 -> 加载 -> 内存中变更 -> 原子持久化
//
// 账户锁在加载之前获取、在提交/回滚之后释放，串行化同一账户
// 上的并发计算；工作单元保证两个账本账户和交易记录要么一起
// 落库要么全部回滚，系统永远看不到只扣了一边的转账
// ============================================================================

// TransferService 内部转账协调器
type TransferService struct {
	uow     repository.UnitOfWork
	locker  lock.AccountLocker
	catalog *model.AssetCatalog
	cfg     *config.Config
}

func NewTransferService(uow repository.UnitOfWork, locker lock.AccountLocker, catalog *model.AssetCatalog, cfg *config.Config) *TransferService {
	return &TransferService{
		uow:     uow,
		locker:  locker,
		catalog: catalog,
		cfg:     cfg,
	}
}

// SubmitRequest 转账请求
type SubmitRequest struct {
	RequestID string  `json:"request_id" binding:"required"` // 幂等ID
	Symbol    string  `json:"symbol" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	From      string  `json:"from" binding:"required"` // 转出方账号
	To        string  `json:"to" binding:"required"`   // 转入方账号
	Memo      string  `json:"memo"`
}

// Submit 发起内部转账
// 创建 PENDING 交易，收取手续费，转出方按总额预扣、转入方
// 按净额预留，三者一起原子落库
func (s *TransferService) Submit(ctx context.Context, req *SubmitRequest) (*model.Transaction, error) {
	if req.Amount < 0 {
		return nil, model.ErrInvalidAmount
	}
	if req.From == req.To {
		return nil, ErrSameAccount
	}
	asset := s.catalog.GetBySymbol(req.Symbol)
	if asset == nil {
		return nil, ErrAssetNotFound
	}

	// 幂等校验
	existing, err := s.uow.Stores().Tx.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	idFrom := model.AccountID(req.From, req.Symbol)
	idTo := model.AccountID(req.To, req.Symbol)

	release, err := s.locker.LockAccounts(ctx, idFrom, idTo)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer release()

	// 获取锁后再次检查幂等
	existing, err = s.uow.Stores().Tx.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	store := s.uow.Stores().ForAssetType(asset.Type)
	from, err := store.Get(ctx, idFrom)
	if err != nil {
		return nil, err
	}
	to, err := store.Get(ctx, idTo)
	if err != nil {
		return nil, err
	}

	trans := model.NewTransfer(
		idgen.GenerateTxID(),
		req.RequestID,
		asset.Symbol,
		req.Amount,
		from.Ledger().AccountNumber,
		to.Ledger().AccountNumber,
		req.Memo,
		s.cfg.Business.ConfirmationsRequired,
	)
	if err := trans.AddFee(FeeReasonTransfer, req.Amount*s.cfg.Business.TransferFeeRate); err != nil {
		return nil, err
	}
	if err := from.Withdraw(trans.TotalAmount); err != nil {
		return nil, err
	}
	if err := to.Deposit(trans.Amount); err != nil {
		return nil, err
	}

	err = s.uow.WithTransaction(ctx, func(st repository.Stores) error {
		ledger := st.ForAssetType(asset.Type)
		if err := ledger.Update(ctx, from); err != nil {
			return fmt.Errorf("更新转出账户失败: %w", err)
		}
		if err := ledger.Update(ctx, to); err != nil {
			return fmt.Errorf("更新转入账户失败: %w", err)
		}
		if err := st.Tx.Create(ctx, trans); err != nil {
			return fmt.Errorf("创建交易记录失败: %w", err)
		}
		return s.addTransactionEvent(ctx, st, trans)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("转账已提交: txID=%s, from=%s, to=%s, amount=%v, total=%v",
		trans.TxID, req.From, req.To, trans.Amount, trans.TotalAmount)
	return trans, nil
}

// Confirm 记录一方确认
// 不动账户余额，但会重新校验两侧账户仍然存在
func (s *TransferService) Confirm(ctx context.Context, txID, confirmerID string) (*model.Transaction, error) {
	trans, asset, err := s.loadTransfer(ctx, txID)
	if err != nil {
		return nil, err
	}

	idFrom := model.AccountID(trans.FromWallet, trans.AssetSymbol)
	idTo := model.AccountID(trans.ToWallet, trans.AssetSymbol)

	// 交易本身也作为锁对象，串行化对同一笔交易的并发确认
	release, err := s.locker.LockAccounts(ctx, idFrom, idTo, "tx_"+txID)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer release()

	trans, asset, err = s.loadTransfer(ctx, txID)
	if err != nil {
		return nil, err
	}

	store := s.uow.Stores().ForAssetType(asset.Type)
	if _, err := store.Get(ctx, idFrom); err != nil {
		return nil, err
	}
	if _, err := store.Get(ctx, idTo); err != nil {
		return nil, err
	}

	if err := trans.Confirm(confirmerID); err != nil {
		return nil, err
	}

	err = s.uow.WithTransaction(ctx, func(st repository.Stores) error {
		if err := st.Tx.Update(ctx, trans); err != nil {
			return fmt.Errorf("更新交易失败: %w", err)
		}
		return s.addTransactionEvent(ctx, st, trans)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("转账确认: txID=%s, confirmer=%s, status=%s", txID, confirmerID, trans.Status)
	return trans, nil
}

// Complete 完结转账
// 转出方按总额最终出账（净额入对方、手续费离开系统），
// 转入方按净额结算入可用余额
func (s *TransferService) Complete(ctx context.Context, txID, externalID string) (*model.Transaction, error) {
	return s.settle(ctx, txID, func(trans *model.Transaction, from, to model.FungibleAccount) error {
		if trans.Status != model.TransactionStatusConfirmed {
			return model.ErrInvalidStateTransition
		}
		if err := from.ConfirmWithdraw(trans.TotalAmount); err != nil {
			return err
		}
		if err := to.ConfirmDeposit(trans.Amount); err != nil {
			return err
		}
		return trans.Complete(externalID)
	})
}

// Fail 确认后失败，精确回退预留：
// 转出方的预扣退回可用余额，转入方的在途预留被移除
// （两侧都按 total_amount 回退）
func (s *TransferService) Fail(ctx context.Context, txID string) (*model.Transaction, error) {
	return s.settle(ctx, txID, func(trans *model.Transaction, from, to model.FungibleAccount) error {
		if trans.Status != model.TransactionStatusConfirmed {
			return model.ErrInvalidStateTransition
		}
		if err := reverseReservation(trans, from, to); err != nil {
			return err
		}
		return trans.Fail()
	})
}

// Cancel 确认前取消，回退逻辑与 Fail 相同，仅状态流转不同
func (s *TransferService) Cancel(ctx context.Context, txID string) (*model.Transaction, error) {
	return s.settle(ctx, txID, func(trans *model.Transaction, from, to model.FungibleAccount) error {
		if trans.Status != model.TransactionStatusPending {
			return model.ErrInvalidStateTransition
		}
		if err := reverseReservation(trans, from, to); err != nil {
			return err
		}
		return trans.Cancel()
	})
}

// GetByTxID 查询交易详情
func (s *TransferService) GetByTxID(ctx context.Context, txID string) (*model.Transaction, error) {
	return s.uow.Stores().Tx.GetByTxID(ctx, txID)
}

// ListByWallet 分页查询某账号相关的交易
func (s *TransferService) ListByWallet(ctx context.Context, wallet string, page, pageSize int) ([]*model.Transaction, int64, error) {
	return s.uow.Stores().Tx.ListByWallet(ctx, wallet, page, pageSize)
}

// reverseReservation 回退 Submit 阶段的预留
// 注意两侧都用 total_amount：转出方 ConfirmDeposit 把预扣
// （含手续费）退回余额，转入方 ConfirmWithdraw 移除在途预留
func reverseReservation(trans *model.Transaction, from, to model.FungibleAccount) error {
	if err := from.ConfirmDeposit(trans.TotalAmount); err != nil {
		return err
	}
	return to.ConfirmWithdraw(trans.TotalAmount)
}

// settle 完结类操作的公共骨架：加锁 -> 加载 -> 变更 -> 原子落库
func (s *TransferService) settle(ctx context.Context, txID string, mutate func(trans *model.Transaction, from, to model.FungibleAccount) error) (*model.Transaction, error) {
	trans, asset, err := s.loadTransfer(ctx, txID)
	if err != nil {
		return nil, err
	}

	idFrom := model.AccountID(trans.FromWallet, trans.AssetSymbol)
	idTo := model.AccountID(trans.ToWallet, trans.AssetSymbol)

	release, err := s.locker.LockAccounts(ctx, idFrom, idTo, "tx_"+txID)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer release()

	// 获取锁后重新加载，拿到的才是当前权威状态
	trans, asset, err = s.loadTransfer(ctx, txID)
	if err != nil {
		return nil, err
	}

	store := s.uow.Stores().ForAssetType(asset.Type)
	from, err := store.Get(ctx, idFrom)
	if err != nil {
		return nil, err
	}
	to, err := store.Get(ctx, idTo)
	if err != nil {
		return nil, err
	}

	if err := mutate(trans, from, to); err != nil {
		return nil, err
	}

	err = s.uow.WithTransaction(ctx, func(st repository.Stores) error {
		ledger := st.ForAssetType(asset.Type)
		if err := ledger.Update(ctx, from); err != nil {
			return fmt.Errorf("更新转出账户失败: %w", err)
		}
		if err := ledger.Update(ctx, to); err != nil {
			return fmt.Errorf("更新转入账户失败: %w", err)
		}
		if err := st.Tx.Update(ctx, trans); err != nil {
			return fmt.Errorf("更新交易失败: %w", err)
		}
		return s.addTransactionEvent(ctx, st, trans)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("转账完结: txID=%s, status=%s", txID, trans.Status)
	return trans, nil
}

// loadTransfer 加载交易并解析其资产
func (s *TransferService) loadTransfer(ctx context.Context, txID string) (*model.Transaction, *model.Asset, error) {
	trans, err := s.uow.Stores().Tx.GetByTxID(ctx, txID)
	if err != nil {
		return nil, nil, err
	}
	asset := s.catalog.GetBySymbol(trans.AssetSymbol)
	if asset == nil {
		return nil, nil, ErrAssetNotFound
	}
	return trans, asset, nil
}

// addTransactionEvent 在当前事务内写入交易生命周期事件
func (s *TransferService) addTransactionEvent(ctx context.Context, st repository.Stores, trans *model.Transaction) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"tx_id":        trans.TxID,
		"type":         trans.Type,
		"status":       trans.Status,
		"asset_symbol": trans.AssetSymbol,
		"amount":       trans.Amount,
		"total_amount": trans.TotalAmount,
		"from_wallet":  trans.FromWallet,
		"to_wallet":    trans.ToWallet,
		"event_time":   time.Now().UTC().Format(time.RFC3339),
	})
	msg := &model.OutboxMessage{
		MessageKey: trans.TxID,
		Topic:      s.cfg.Kafka.Topic.TransactionEvents,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := st.Outbox.Add(ctx, msg); err != nil {
		return fmt.Errorf("写入事件消息失败: %w", err)
	}
	return nil
}
