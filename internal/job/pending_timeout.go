package job

import (
	"context"
	"log"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/internal/service"
)

// PendingTimeoutJob 转账超时任务
// 超过时限仍停留在 PENDING 的转账走正常取消流程，
// 两侧账户的预留随之回退
type PendingTimeoutJob struct {
	uow             repository.UnitOfWork
	transferService *service.TransferService
	cfg             *config.Config
	stopCh          chan struct{}
	interval        time.Duration
	batchSize       int
}

func NewPendingTimeoutJob(uow repository.UnitOfWork, transferService *service.TransferService, cfg *config.Config) *PendingTimeoutJob {
	return &PendingTimeoutJob{
		uow:             uow,
		transferService: transferService,
		cfg:             cfg,
		stopCh:          make(chan struct{}),
		interval:        10 * time.Second,
		batchSize:       100,
	}
}

func (j *PendingTimeoutJob) Start(ctx context.Context) {
	log.Println("[PendingTimeoutJob] 转账超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PendingTimeoutJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[PendingTimeoutJob] 任务停止")
			return
		case <-ticker.C:
			j.cancelExpiredTransfers(ctx)
		}
	}
}

func (j *PendingTimeoutJob) Stop() {
	close(j.stopCh)
}

func (j *PendingTimeoutJob) cancelExpiredTransfers(ctx context.Context) {
	timeout := time.Duration(j.cfg.Business.PendingTimeoutMinutes) * time.Minute
	before := time.Now().UTC().Add(-timeout)

	transfers, err := j.uow.Stores().Tx.ListPendingBefore(ctx, model.TransactionTypeTransfer, before, j.batchSize)
	if err != nil {
		log.Printf("[PendingTimeoutJob] 查询超时转账失败: %v", err)
		return
	}

	if len(transfers) == 0 {
		return
	}

	log.Printf("[PendingTimeoutJob] 发现 %d 笔超时转账", len(transfers))

	cancelled := 0
	for _, trans := range transfers {
		// 走正常取消流程：加锁、回退预留、状态流转全部复用
		if _, err := j.transferService.Cancel(ctx, trans.TxID); err != nil {
			log.Printf("[PendingTimeoutJob] 取消转账失败: txID=%s, err=%v", trans.TxID, err)
			continue
		}
		cancelled++
		log.Printf("[PendingTimeoutJob] 转账已超时取消: txID=%s, amount=%v", trans.TxID, trans.Amount)
	}

	log.Printf("[PendingTimeoutJob] 本次取消 %d 笔超时转账", cancelled)
}
