package model

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// 交易类型与状态常量
// ============================================================================

const (
	TransactionTypeDeposit  = "DEPOSIT"  // 外部入金
	TransactionTypeWithdraw = "WITHDRAW" // 外部出金
	TransactionTypeTransfer = "TRANSFER" // 内部转账
	TransactionTypeTrading  = "TRADING"  // 交易撮合（预留）
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusConfirmed = "CONFIRMED"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusCancelled = "CANCELLED"
	TransactionStatusFailed    = "FAILED"
)

// ValidStatusTransitions 交易状态机
// COMPLETED / CANCELLED / FAILED 为终态，不允许再流转
var ValidStatusTransitions = map[string][]string{
	TransactionStatusPending:   {TransactionStatusConfirmed, TransactionStatusCancelled},
	TransactionStatusConfirmed: {TransactionStatusCompleted, TransactionStatusFailed},
}

// CanTransitionTo 判断状态流转是否合法
func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowed, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

var (
	ErrInvalidStateTransition = errors.New("交易状态不允许该操作")
	ErrDuplicateConfirmation  = errors.New("该确认方已确认过，请勿重复确认")
)

// ============================================================================
// 交易实体：状态机 + 多方确认 + 防篡改审计日志
// ============================================================================

// FeeEntry 手续费明细
type FeeEntry struct {
	Reason string  `json:"reason"`
	Amount float64 `json:"amount"`
}

// Confirmation 确认记录
type Confirmation struct {
	ConfirmerID string    `json:"confirmer_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// AuditEvent 审计事件，每次变更追加一条
// Hash 覆盖交易当前完整快照以及前一条事件的 Hash，形成哈希链，
// 任何一条历史记录被篡改都会导致后续所有哈希失配
type AuditEvent struct {
	Hash         string    `json:"hash"`
	Timestamp    time.Time `json:"timestamp"`
	FieldChanged string    `json:"field_changed"`
	Value        string    `json:"value"`
}

// Transaction 交易记录
//
// 【重要】设计原则：
// 1. 状态只能沿状态机前进，到达终态后实体不可变
// 2. total_amount = amount + 所有手续费之和
// 3. 每次变更都追加审计事件，审计日志只追加不修改
type Transaction struct {
	ID                    int64          `gorm:"primaryKey;autoIncrement" json:"-"`
	TxID                  string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"tx_id"`
	RequestID             string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等ID，调用方提供
	ExternalID            string         `gorm:"type:varchar(64)" json:"external_id,omitempty"`
	Type                  string         `gorm:"type:varchar(16);not null" json:"type"`
	Status                string         `gorm:"type:varchar(16);index;not null" json:"status"`
	AssetSymbol           string         `gorm:"type:varchar(16);not null" json:"asset_symbol"`
	Amount                float64        `gorm:"not null" json:"amount"`
	TotalAmount           float64        `gorm:"not null" json:"total_amount"` // amount + 手续费
	FromWallet            string         `gorm:"type:varchar(32);index" json:"from_wallet,omitempty"`
	ToWallet              string         `gorm:"type:varchar(32);index" json:"to_wallet,omitempty"`
	Timestamp             time.Time      `gorm:"not null" json:"timestamp"`
	Fees                  []FeeEntry     `gorm:"serializer:json" json:"fees"`
	Memo                  string         `gorm:"type:varchar(256)" json:"memo"`
	Confirmations         []Confirmation `gorm:"serializer:json" json:"confirmations"`
	ConfirmationsRequired int            `gorm:"not null" json:"confirmations_required"`
	AuditLog              []AuditEvent   `gorm:"serializer:json" json:"audit_log"`
	CreatedAt             time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transaction_record"
}

// newTimestamp 交易时间戳
// Timestamp 参与审计哈希，而 MySQL datetime(3) 只保留毫秒，
// 构造时就截断到毫秒，否则落库重读后哈希必然失配
func newTimestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewTransfer 创建内部转账交易，初始状态 PENDING
func NewTransfer(txID, requestID, symbol string, amount float64, fromWallet, toWallet, memo string, confirmationsRequired int) *Transaction {
	return &Transaction{
		TxID:                  txID,
		RequestID:             requestID,
		Type:                  TransactionTypeTransfer,
		Status:                TransactionStatusPending,
		AssetSymbol:           symbol,
		Amount:                amount,
		TotalAmount:           amount,
		FromWallet:            fromWallet,
		ToWallet:              toWallet,
		Timestamp:             newTimestamp(),
		Memo:                  memo,
		ConfirmationsRequired: confirmationsRequired,
	}
}

// NewDeposit 创建入金交易
func NewDeposit(txID, requestID, symbol string, amount float64, toWallet string, confirmationsRequired int) *Transaction {
	return &Transaction{
		TxID:                  txID,
		RequestID:             requestID,
		Type:                  TransactionTypeDeposit,
		Status:                TransactionStatusPending,
		AssetSymbol:           symbol,
		Amount:                amount,
		TotalAmount:           amount,
		ToWallet:              toWallet,
		Timestamp:             newTimestamp(),
		Memo:                  "Deposit",
		ConfirmationsRequired: confirmationsRequired,
	}
}

// NewWithdraw 创建出金交易
func NewWithdraw(txID, requestID, symbol string, amount float64, fromWallet string, confirmationsRequired int) *Transaction {
	return &Transaction{
		TxID:                  txID,
		RequestID:             requestID,
		Type:                  TransactionTypeWithdraw,
		Status:                TransactionStatusPending,
		AssetSymbol:           symbol,
		Amount:                amount,
		TotalAmount:           amount,
		FromWallet:            fromWallet,
		Timestamp:             newTimestamp(),
		Memo:                  "Withdraw",
		ConfirmationsRequired: confirmationsRequired,
	}
}

// IsFinal 是否已到终态
func (t *Transaction) IsFinal() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusCancelled, TransactionStatusFailed:
		return true
	}
	return false
}

// AddFee 追加一笔手续费并计入总额，终态交易不允许修改
func (t *Transaction) AddFee(reason string, amount float64) error {
	if t.IsFinal() {
		return ErrInvalidStateTransition
	}
	if amount < 0 {
		return ErrInvalidAmount
	}
	t.Fees = append(t.Fees, FeeEntry{Reason: reason, Amount: amount})
	t.TotalAmount += amount
	t.appendAuditEvent("fee", strconv.FormatFloat(amount, 'f', -1, 64))
	return nil
}

// Confirm 记录一方确认
// 仅 PENDING 状态合法；同一确认方重复确认被拒绝；
// 确认数达到阈值时流转到 CONFIRMED
func (t *Transaction) Confirm(confirmerID string) error {
	if t.Status != TransactionStatusPending {
		return ErrInvalidStateTransition
	}
	for _, c := range t.Confirmations {
		if c.ConfirmerID == confirmerID {
			return ErrDuplicateConfirmation
		}
	}
	t.Confirmations = append(t.Confirmations, Confirmation{
		ConfirmerID: confirmerID,
		Timestamp:   time.Now().UTC(),
	})
	t.appendAuditEvent("confirmer_id", confirmerID)
	if len(t.Confirmations) >= t.ConfirmationsRequired {
		t.Status = TransactionStatusConfirmed
	}
	t.appendAuditEvent("status", t.Status)
	return nil
}

// Complete 完成交易，记录外部凭证号，仅 CONFIRMED 状态合法
func (t *Transaction) Complete(externalID string) error {
	if !CanTransitionTo(t.Status, TransactionStatusCompleted) {
		return ErrInvalidStateTransition
	}
	t.ExternalID = externalID
	t.appendAuditEvent("external_id", externalID)
	t.Status = TransactionStatusCompleted
	t.appendAuditEvent("status", t.Status)
	return nil
}

// Fail 标记交易失败，仅 CONFIRMED 状态合法
func (t *Transaction) Fail() error {
	if !CanTransitionTo(t.Status, TransactionStatusFailed) {
		return ErrInvalidStateTransition
	}
	t.Status = TransactionStatusFailed
	t.appendAuditEvent("status", t.Status)
	return nil
}

// Cancel 取消交易，仅 PENDING 状态合法
func (t *Transaction) Cancel() error {
	if !CanTransitionTo(t.Status, TransactionStatusCancelled) {
		return ErrInvalidStateTransition
	}
	t.Status = TransactionStatusCancelled
	t.appendAuditEvent("status", t.Status)
	return nil
}

// appendAuditEvent 追加审计事件，哈希覆盖当前快照与前一条事件哈希
func (t *Transaction) appendAuditEvent(fieldChanged, value string) {
	prevHash := "None"
	if n := len(t.AuditLog); n > 0 {
		prevHash = t.AuditLog[n-1].Hash
	}
	t.AuditLog = append(t.AuditLog, AuditEvent{
		Hash:         t.hashState(prevHash),
		Timestamp:    time.Now().UTC(),
		FieldChanged: fieldChanged,
		Value:        value,
	})
}

// hashState 对交易完整快照 + 前序哈希做 SHA-256
func (t *Transaction) hashState(prevHash string) string {
	var b strings.Builder
	b.WriteString(prevHash)
	b.WriteString(t.TxID)
	b.WriteString(t.ExternalID)
	b.WriteString(t.Type)
	b.WriteString(t.Status)
	b.WriteString(t.AssetSymbol)
	b.WriteString(strconv.FormatFloat(t.Amount, 'f', -1, 64))
	b.WriteString(strconv.FormatFloat(t.TotalAmount, 'f', -1, 64))
	b.WriteString(t.FromWallet)
	b.WriteString(t.ToWallet)
	b.WriteString(t.Timestamp.UTC().Format(time.RFC3339Nano))
	for _, f := range t.Fees {
		b.WriteString(strconv.FormatFloat(f.Amount, 'f', -1, 64))
	}
	b.WriteString(t.Memo)
	for _, c := range t.Confirmations {
		b.WriteString(c.ConfirmerID)
	}
	b.WriteString(strconv.Itoa(t.ConfirmationsRequired))

	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum)
}

// VerifyAuditLog 校验审计日志与当前快照是否一致
// 最后一条事件写入后交易未再变更，因此用当前快照 + 倒数第二条
// 事件的哈希重算，必须得到最后一条事件的哈希；
// 中间事件的快照已随状态演进丢失，只能校验链上哈希互不重复
func (t *Transaction) VerifyAuditLog() bool {
	n := len(t.AuditLog)
	if n == 0 {
		return t.Status == TransactionStatusPending
	}
	seen := make(map[string]bool, n)
	for _, e := range t.AuditLog {
		if e.Hash == "" || seen[e.Hash] {
			return false
		}
		seen[e.Hash] = true
	}
	prevHash := "None"
	if n > 1 {
		prevHash = t.AuditLog[n-2].Hash
	}
	return t.AuditLog[n-1].Hash == t.hashState(prevHash)
}
