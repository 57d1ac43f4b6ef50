package handler

import (
	"bankledger/internal/config"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(uow repository.UnitOfWork, locker lock.AccountLocker, catalog *model.AssetCatalog, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(uow, locker, catalog, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 钱包相关
		wallet := api.Group("/wallet")
		{
			wallet.POST("/create", h.CreateWallet)
			wallet.GET("/detail", h.GetWallet)
		}

		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/balances", h.GetBalances)
			account.POST("/deposit", h.Deposit)
			account.POST("/deposit/confirm", h.ConfirmDeposit)
			account.POST("/deposit/cancel", h.CancelDeposit)
			account.POST("/withdraw", h.Withdraw)
			account.POST("/withdraw/confirm", h.ConfirmWithdraw)
			account.POST("/withdraw/cancel", h.CancelWithdraw)
		}

		// 转账相关
		transfer := api.Group("/transfer")
		{
			transfer.POST("/submit", h.SubmitTransfer)
			transfer.POST("/confirm", h.ConfirmTransfer)
			transfer.POST("/complete", h.CompleteTransfer)
			transfer.POST("/fail", h.FailTransfer)
			transfer.POST("/cancel", h.CancelTransfer)
		}

		// 交易查询
		transaction := api.Group("/transaction")
		{
			transaction.GET("/detail", h.GetTransaction)
			transaction.GET("/list", h.ListTransactions)
		}

		// 资产目录
		asset := api.Group("/asset")
		{
			asset.GET("/list", h.ListAssets)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
