package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransfer(confirmationsRequired int) *Transaction {
	return NewTransfer("TXN001", "req-001", "USD", 100, "ACC-A", "ACC-B", "test", confirmationsRequired)
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{TransactionStatusPending, TransactionStatusConfirmed, true},
		{TransactionStatusPending, TransactionStatusCancelled, true},
		{TransactionStatusPending, TransactionStatusCompleted, false},
		{TransactionStatusPending, TransactionStatusFailed, false},
		{TransactionStatusConfirmed, TransactionStatusCompleted, true},
		{TransactionStatusConfirmed, TransactionStatusFailed, true},
		{TransactionStatusConfirmed, TransactionStatusCancelled, false},
		{TransactionStatusCompleted, TransactionStatusFailed, false},
		{TransactionStatusCancelled, TransactionStatusConfirmed, false},
		{TransactionStatusFailed, TransactionStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionTo(tt.from, tt.to))
		})
	}
}

func TestTransaction_AddFee(t *testing.T) {
	trans := newTestTransfer(1)
	require.Equal(t, 100.0, trans.TotalAmount)

	require.NoError(t, trans.AddFee("Tx Fee", 1))
	assert.Equal(t, 101.0, trans.TotalAmount)
	assert.Len(t, trans.Fees, 1)
	assert.Equal(t, "Tx Fee", trans.Fees[0].Reason)

	assert.ErrorIs(t, trans.AddFee("bad", -1), ErrInvalidAmount)
}

func TestTransaction_AddFee_FinalState(t *testing.T) {
	trans := newTestTransfer(1)
	require.NoError(t, trans.Cancel())
	assert.ErrorIs(t, trans.AddFee("Tx Fee", 1), ErrInvalidStateTransition)
}

func TestTransaction_Confirm(t *testing.T) {
	trans := newTestTransfer(2)

	require.NoError(t, trans.Confirm("alice"))
	assert.Equal(t, TransactionStatusPending, trans.Status)
	assert.Len(t, trans.Confirmations, 1)

	// 同一确认方重复确认被拒绝
	assert.ErrorIs(t, trans.Confirm("alice"), ErrDuplicateConfirmation)
	assert.Len(t, trans.Confirmations, 1)

	// 达到阈值后流转到 CONFIRMED
	require.NoError(t, trans.Confirm("bob"))
	assert.Equal(t, TransactionStatusConfirmed, trans.Status)

	// CONFIRMED 之后不再接受确认
	assert.ErrorIs(t, trans.Confirm("carol"), ErrInvalidStateTransition)
}

func TestTransaction_Lifecycle_Complete(t *testing.T) {
	trans := newTestTransfer(1)

	require.NoError(t, trans.Confirm("alice"))
	require.Equal(t, TransactionStatusConfirmed, trans.Status)

	require.NoError(t, trans.Complete("EXT-123"))
	assert.Equal(t, TransactionStatusCompleted, trans.Status)
	assert.Equal(t, "EXT-123", trans.ExternalID)
	assert.True(t, trans.IsFinal())

	// 终态不可变
	assert.ErrorIs(t, trans.Fail(), ErrInvalidStateTransition)
	assert.ErrorIs(t, trans.Cancel(), ErrInvalidStateTransition)
	assert.ErrorIs(t, trans.Complete("EXT-456"), ErrInvalidStateTransition)
}

func TestTransaction_Lifecycle_FailAndCancel(t *testing.T) {
	// PENDING 不能直接失败
	trans := newTestTransfer(1)
	assert.ErrorIs(t, trans.Fail(), ErrInvalidStateTransition)

	// PENDING -> CANCELLED
	require.NoError(t, trans.Cancel())
	assert.Equal(t, TransactionStatusCancelled, trans.Status)
	assert.True(t, trans.IsFinal())

	// CONFIRMED -> FAILED，且 CONFIRMED 不能取消
	trans = newTestTransfer(1)
	require.NoError(t, trans.Confirm("alice"))
	assert.ErrorIs(t, trans.Cancel(), ErrInvalidStateTransition)
	require.NoError(t, trans.Fail())
	assert.Equal(t, TransactionStatusFailed, trans.Status)
}

func TestTransaction_AuditLog(t *testing.T) {
	trans := newTestTransfer(1)
	assert.Empty(t, trans.AuditLog)
	assert.True(t, trans.VerifyAuditLog())

	require.NoError(t, trans.AddFee("Tx Fee", 1))
	require.NoError(t, trans.Confirm("alice"))
	require.NoError(t, trans.Complete("EXT-123"))

	// fee + confirmer_id + status + external_id + status
	require.Len(t, trans.AuditLog, 5)
	assert.Equal(t, "fee", trans.AuditLog[0].FieldChanged)
	assert.Equal(t, "confirmer_id", trans.AuditLog[1].FieldChanged)
	assert.Equal(t, "alice", trans.AuditLog[1].Value)
	assert.Equal(t, "status", trans.AuditLog[4].FieldChanged)
	assert.Equal(t, TransactionStatusCompleted, trans.AuditLog[4].Value)

	// 哈希链完整
	assert.True(t, trans.VerifyAuditLog())
}

// 时间戳列落库只保留毫秒，重读后的校验不能因精度丢失而误报
func TestTransaction_VerifyAuditLog_SurvivesDatetimeRoundTrip(t *testing.T) {
	trans := newTestTransfer(1)
	require.NoError(t, trans.AddFee("Tx Fee", 1))
	require.NoError(t, trans.Confirm("alice"))
	require.NoError(t, trans.Complete("EXT-123"))
	require.True(t, trans.VerifyAuditLog())

	// 构造时就已截断到毫秒
	assert.Zero(t, trans.Timestamp.Nanosecond()%int(time.Millisecond))

	// 模拟 datetime(3) 往返
	reloaded := *trans
	reloaded.Timestamp = trans.Timestamp.Truncate(time.Millisecond)
	assert.True(t, reloaded.VerifyAuditLog())
}

func TestTransaction_VerifyAuditLog_Tampered(t *testing.T) {
	trans := newTestTransfer(1)
	require.NoError(t, trans.Confirm("alice"))
	require.NoError(t, trans.Complete("EXT-123"))
	require.True(t, trans.VerifyAuditLog())

	// 篡改快照字段
	tampered := *trans
	tampered.Amount = 999
	assert.False(t, tampered.VerifyAuditLog())

	// 篡改末尾事件哈希
	tampered = *trans
	tampered.AuditLog = append([]AuditEvent(nil), trans.AuditLog...)
	tampered.AuditLog[len(tampered.AuditLog)-1].Hash = "deadbeef"
	assert.False(t, tampered.VerifyAuditLog())

	// 哈希重复（历史记录被复制覆盖）
	tampered = *trans
	tampered.AuditLog = append([]AuditEvent(nil), trans.AuditLog...)
	tampered.AuditLog[0].Hash = tampered.AuditLog[1].Hash
	assert.False(t, tampered.VerifyAuditLog())
}
