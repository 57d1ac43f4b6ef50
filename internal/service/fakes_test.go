package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bankledger/internal/model"
	"bankledger/internal/repository"
)

// ============================================================================
// 内存版存储实现
// ============================================================================
//
// WithTransaction 在状态快照上执行闭包，成功才把快照换入，
// 任何一步出错状态保持原样，用来验证多表变更的原子性
// ============================================================================

// failures 故障注入点
type failures struct {
	txCreate      error
	txUpdate      error
	accountUpdate error
}

type memState struct {
	accounts map[string]model.FungibleAccount // 法币和加密账户共用，按ID索引
	trans    map[string]*model.Transaction     // 按TxID索引
	wallets  map[string]*model.Wallet          // 按账号索引
	outbox   []*model.OutboxMessage
}

func newMemState() *memState {
	return &memState{
		accounts: make(map[string]model.FungibleAccount),
		trans:    make(map[string]*model.Transaction),
		wallets:  make(map[string]*model.Wallet),
	}
}

func cloneAccount(acc model.FungibleAccount) model.FungibleAccount {
	switch a := acc.(type) {
	case *model.FiatAccount:
		c := *a
		return &c
	case *model.CryptoAccount:
		c := *a
		return &c
	}
	return acc
}

func cloneTransaction(t *model.Transaction) *model.Transaction {
	c := *t
	c.Fees = append([]model.FeeEntry(nil), t.Fees...)
	c.Confirmations = append([]model.Confirmation(nil), t.Confirmations...)
	c.AuditLog = append([]model.AuditEvent(nil), t.AuditLog...)
	return &c
}

func (s *memState) clone() *memState {
	c := newMemState()
	for id, acc := range s.accounts {
		c.accounts[id] = cloneAccount(acc)
	}
	for id, t := range s.trans {
		c.trans[id] = cloneTransaction(t)
	}
	for id, w := range s.wallets {
		cw := *w
		c.wallets[id] = &cw
	}
	c.outbox = append([]*model.OutboxMessage(nil), s.outbox...)
	return c
}

type memUnitOfWork struct {
	mu    sync.Mutex
	state *memState
	fail  failures
}

func newMemUnitOfWork() *memUnitOfWork {
	return &memUnitOfWork{state: newMemState()}
}

func (u *memUnitOfWork) Stores() repository.Stores {
	return u.storesOn(u.state)
}

func (u *memUnitOfWork) WithTransaction(ctx context.Context, fn func(s repository.Stores) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	staged := u.state.clone()
	if err := fn(u.storesOn(staged)); err != nil {
		return err
	}
	u.state = staged
	return nil
}

func (u *memUnitOfWork) storesOn(state *memState) repository.Stores {
	accounts := &memAccountStore{state: state, fail: &u.fail}
	return repository.Stores{
		Fiat:   accounts,
		Crypto: accounts,
		Tx:     &memTransactionStore{state: state, fail: &u.fail},
		Wallet: &memWalletStore{state: state},
		Outbox: &memOutboxStore{state: state},
	}
}

// ---- 账本账户 ----

type memAccountStore struct {
	state *memState
	fail  *failures
}

func (s *memAccountStore) Get(ctx context.Context, id string) (model.FungibleAccount, error) {
	acc, ok := s.state.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return cloneAccount(acc), nil
}

func (s *memAccountStore) Create(ctx context.Context, acc model.FungibleAccount) error {
	s.state.accounts[acc.Ledger().ID] = cloneAccount(acc)
	return nil
}

func (s *memAccountStore) Update(ctx context.Context, acc model.FungibleAccount) error {
	if s.fail.accountUpdate != nil {
		return s.fail.accountUpdate
	}
	id := acc.Ledger().ID
	if _, ok := s.state.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	s.state.accounts[id] = cloneAccount(acc)
	return nil
}

func (s *memAccountStore) ListByAccountNumber(ctx context.Context, accountNumber string) ([]model.FungibleAccount, error) {
	var ids []string
	for id := range s.state.accounts {
		if strings.HasPrefix(id, accountNumber+"_") {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]model.FungibleAccount, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneAccount(s.state.accounts[id]))
	}
	return out, nil
}

// ---- 交易记录 ----

type memTransactionStore struct {
	state *memState
	fail  *failures
}

func (s *memTransactionStore) Create(ctx context.Context, trans *model.Transaction) error {
	if s.fail.txCreate != nil {
		return s.fail.txCreate
	}
	for _, t := range s.state.trans {
		if t.RequestID == trans.RequestID {
			return repository.ErrDuplicateRequest
		}
	}
	c := cloneTransaction(trans)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.state.trans[trans.TxID] = c
	return nil
}

func (s *memTransactionStore) GetByTxID(ctx context.Context, txID string) (*model.Transaction, error) {
	t, ok := s.state.trans[txID]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	return cloneTransaction(t), nil
}

func (s *memTransactionStore) GetByRequestID(ctx context.Context, requestID string) (*model.Transaction, error) {
	for _, t := range s.state.trans {
		if t.RequestID == requestID {
			return cloneTransaction(t), nil
		}
	}
	return nil, nil
}

func (s *memTransactionStore) Update(ctx context.Context, trans *model.Transaction) error {
	if s.fail.txUpdate != nil {
		return s.fail.txUpdate
	}
	if _, ok := s.state.trans[trans.TxID]; !ok {
		return repository.ErrTransactionNotFound
	}
	s.state.trans[trans.TxID] = cloneTransaction(trans)
	return nil
}

func (s *memTransactionStore) ListByWallet(ctx context.Context, wallet string, page, pageSize int) ([]*model.Transaction, int64, error) {
	var out []*model.Transaction
	for _, t := range s.state.trans {
		if t.FromWallet == wallet || t.ToWallet == wallet {
			out = append(out, cloneTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxID < out[j].TxID })
	return out, int64(len(out)), nil
}

func (s *memTransactionStore) ListPendingBefore(ctx context.Context, txType string, before time.Time, limit int) ([]*model.Transaction, error) {
	var out []*model.Transaction
	for _, t := range s.state.trans {
		if t.Type == txType && t.Status == model.TransactionStatusPending && t.CreatedAt.Before(before) {
			out = append(out, cloneTransaction(t))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---- 钱包 ----

type memWalletStore struct {
	state *memState
}

func (s *memWalletStore) Create(ctx context.Context, w *model.Wallet) error {
	cw := *w
	s.state.wallets[w.AccountNumber] = &cw
	return nil
}

func (s *memWalletStore) GetByAccountNumber(ctx context.Context, accountNumber string) (*model.Wallet, error) {
	w, ok := s.state.wallets[accountNumber]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	cw := *w
	return &cw, nil
}

// ---- 发件箱 ----

type memOutboxStore struct {
	state *memState
}

func (s *memOutboxStore) Add(ctx context.Context, msg *model.OutboxMessage) error {
	m := *msg
	s.state.outbox = append(s.state.outbox, &m)
	return nil
}
