package handler

import (
	"errors"
	"strconv"

	"bankledger/internal/config"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/internal/service"
	"bankledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	walletService   *service.WalletService
	accountService  *service.AccountService
	transferService *service.TransferService
	catalog         *model.AssetCatalog
}

// NewHandler 创建处理器实例
func NewHandler(uow repository.UnitOfWork, locker lock.AccountLocker, catalog *model.AssetCatalog, cfg *config.Config) *Handler {
	return &Handler{
		walletService:   service.NewWalletService(uow, catalog, cfg),
		accountService:  service.NewAccountService(uow, locker, catalog, cfg),
		transferService: service.NewTransferService(uow, locker, catalog, cfg),
		catalog:         catalog,
	}
}

// writeError 把领域错误翻译成业务错误码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, model.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, model.ErrInvalidStateTransition):
		response.BusinessError(c, response.CodeInvalidStateTransition, err.Error())
	case errors.Is(err, model.ErrDuplicateConfirmation):
		response.BusinessError(c, response.CodeDuplicateConfirmation, err.Error())
	case errors.Is(err, service.ErrAssetNotFound):
		response.BusinessError(c, response.CodeAssetNotFound, err.Error())
	case errors.Is(err, service.ErrSameAccount):
		response.ParamError(c, err.Error())
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, repository.ErrWalletNotFound):
		response.BusinessError(c, response.CodeWalletNotFound, err.Error())
	case errors.Is(err, repository.ErrTransactionNotFound):
		response.BusinessError(c, response.CodeTransactionNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicateRequest):
		response.BusinessError(c, response.CodeDuplicateRequest, err.Error())
	case errors.Is(err, repository.ErrOptimisticLock):
		response.BusinessError(c, response.CodeOptimisticLock, err.Error())
	case errors.Is(err, repository.ErrAtomicCommitFailure):
		response.BusinessError(c, response.CodeAtomicCommitFailure, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 钱包相关接口
// ============================================================

// CreateWallet 开户
// POST /api/v1/wallet/create
func (h *Handler) CreateWallet(c *gin.Context) {
	wallet, err := h.walletService.CreateWallet(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, wallet)
}

// GetWallet 查询钱包
// GET /api/v1/wallet/detail?account_number=xxx
func (h *Handler) GetWallet(c *gin.Context) {
	accountNumber := c.Query("account_number")
	if accountNumber == "" {
		response.ParamError(c, "account_number 参数不能为空")
		return
	}

	wallet, err := h.walletService.GetWallet(c.Request.Context(), accountNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, wallet)
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalances 查询账号全部资产余额
// GET /api/v1/account/balances?account_number=xxx
func (h *Handler) GetBalances(c *gin.Context) {
	accountNumber := c.Query("account_number")
	if accountNumber == "" {
		response.ParamError(c, "account_number 参数不能为空")
		return
	}

	balances, err := h.accountService.Balances(c.Request.Context(), accountNumber)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_number": accountNumber,
		"balances":       balances,
	})
}

// Deposit 外部入金（进入在途，待确认）
// POST /api/v1/account/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req service.FundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.accountService.Deposit(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"tx_id":  trans.TxID,
		"status": trans.Status,
		"amount": trans.Amount,
	})
}

// Withdraw 外部出金（预扣到在途，待结算）
// POST /api/v1/account/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req service.FundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.accountService.Withdraw(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"tx_id":  trans.TxID,
		"status": trans.Status,
		"amount": trans.Amount,
	})
}

// HoldOpRequest 在途资金结算/撤销请求
type HoldOpRequest struct {
	AccountNumber string  `json:"account_number" binding:"required"`
	Symbol        string  `json:"symbol" binding:"required"`
	Amount        float64 `json:"amount" binding:"required"`
}

func (h *Handler) holdOp(c *gin.Context, apply func(ctx *gin.Context, req *HoldOpRequest) error) {
	var req HoldOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := apply(c, &req); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "ok"})
}

// ConfirmDeposit 入金结算
// POST /api/v1/account/deposit/confirm
func (h *Handler) ConfirmDeposit(c *gin.Context) {
	h.holdOp(c, func(ctx *gin.Context, req *HoldOpRequest) error {
		return h.accountService.ConfirmDeposit(ctx.Request.Context(), req.AccountNumber, req.Symbol, req.Amount)
	})
}

// CancelDeposit 拒绝入金
// POST /api/v1/account/deposit/cancel
func (h *Handler) CancelDeposit(c *gin.Context) {
	h.holdOp(c, func(ctx *gin.Context, req *HoldOpRequest) error {
		return h.accountService.CancelDeposit(ctx.Request.Context(), req.AccountNumber, req.Symbol, req.Amount)
	})
}

// ConfirmWithdraw 出金结算
// POST /api/v1/account/withdraw/confirm
func (h *Handler) ConfirmWithdraw(c *gin.Context) {
	h.holdOp(c, func(ctx *gin.Context, req *HoldOpRequest) error {
		return h.accountService.ConfirmWithdraw(ctx.Request.Context(), req.AccountNumber, req.Symbol, req.Amount)
	})
}

// CancelWithdraw 撤销出金
// POST /api/v1/account/withdraw/cancel
func (h *Handler) CancelWithdraw(c *gin.Context) {
	h.holdOp(c, func(ctx *gin.Context, req *HoldOpRequest) error {
		return h.accountService.CancelWithdraw(ctx.Request.Context(), req.AccountNumber, req.Symbol, req.Amount)
	})
}

// ============================================================
// 转账相关接口
// ============================================================

// SubmitTransfer 发起内部转账
// POST /api/v1/transfer/submit
//
// 【关键点】转账是整个系统最核心的操作，需要保证：
// 1. 幂等性：相同的 request_id 只会执行一次
// 2. 原子性：两侧账户变更和交易记录必须同时成功或同时失败
// 3. 并发安全：通过按账户加锁序列化同一账户上的并发操作
func (h *Handler) SubmitTransfer(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.transferService.Submit(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"tx_id":        trans.TxID,
		"status":       trans.Status,
		"amount":       trans.Amount,
		"total_amount": trans.TotalAmount,
		"fees":         trans.Fees,
	})
}

// ConfirmTransferRequest 转账确认请求
type ConfirmTransferRequest struct {
	TxID        string `json:"tx_id" binding:"required"`
	ConfirmerID string `json:"confirmer_id" binding:"required"`
}

// ConfirmTransfer 记录一方确认
// POST /api/v1/transfer/confirm
func (h *Handler) ConfirmTransfer(c *gin.Context) {
	var req ConfirmTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.transferService.Confirm(c.Request.Context(), req.TxID, req.ConfirmerID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"tx_id":         trans.TxID,
		"status":        trans.Status,
		"confirmations": len(trans.Confirmations),
	})
}

// CompleteTransferRequest 转账完结请求
type CompleteTransferRequest struct {
	TxID       string `json:"tx_id" binding:"required"`
	ExternalID string `json:"external_id"`
}

// CompleteTransfer 完结转账，资金最终结算
// POST /api/v1/transfer/complete
func (h *Handler) CompleteTransfer(c *gin.Context) {
	var req CompleteTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.transferService.Complete(c.Request.Context(), req.TxID, req.ExternalID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, trans)
}

// FailTransfer 确认后失败，回退预留
// POST /api/v1/transfer/fail
func (h *Handler) FailTransfer(c *gin.Context) {
	var req struct {
		TxID string `json:"tx_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.transferService.Fail(c.Request.Context(), req.TxID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, trans)
}

// CancelTransfer 确认前取消
// POST /api/v1/transfer/cancel
func (h *Handler) CancelTransfer(c *gin.Context) {
	var req struct {
		TxID string `json:"tx_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.transferService.Cancel(c.Request.Context(), req.TxID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, trans)
}

// ============================================================
// 交易查询接口
// ============================================================

// GetTransaction 查询交易详情（含完整审计日志）
// GET /api/v1/transaction/detail?tx_id=xxx
func (h *Handler) GetTransaction(c *gin.Context) {
	txID := c.Query("tx_id")
	if txID == "" {
		response.ParamError(c, "tx_id 参数不能为空")
		return
	}

	trans, err := h.transferService.GetByTxID(c.Request.Context(), txID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction":      trans,
		"audit_log_intact": trans.VerifyAuditLog(),
	})
}

// ListTransactions 分页查询某账号的交易
// GET /api/v1/transaction/list?account_number=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	accountNumber := c.Query("account_number")
	if accountNumber == "" {
		response.ParamError(c, "account_number 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	list, total, err := h.transferService.ListByWallet(c.Request.Context(), accountNumber, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 资产目录接口
// ============================================================

// ListAssets 查询支持的资产列表
// GET /api/v1/asset/list
func (h *Handler) ListAssets(c *gin.Context) {
	response.Success(c, gin.H{
		"assets": h.catalog.List(),
	})
}
