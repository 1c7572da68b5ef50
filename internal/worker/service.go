package worker

import (
	"context"
	"errors"
	"time"

	"github.com/syncbridge/internal/config"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/queue"

	"github.com/hibiken/asynq"
)

const defaultPollInterval = 5 * time.Minute

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	serverCfg.ErrorHandler = asynq.ErrorHandlerFunc(consumer.handleTaskError)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.Adapter != nil {
		go s.runOutboundPollLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(_ context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.server.Shutdown()
	return nil
}

// runOutboundPollLoop 定期轮询履约网络的出库单状态
func (s *Service) runOutboundPollLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.Adapter == nil {
		return
	}
	interval := defaultPollInterval
	batchSize := 50
	if cfg := s.consumer.Config; cfg != nil {
		if cfg.Fulfillment.PollIntervalSeconds > 0 {
			interval = time.Duration(cfg.Fulfillment.PollIntervalSeconds) * time.Second
		}
		if cfg.Fulfillment.PollBatchSize > 0 {
			batchSize = cfg.Fulfillment.PollBatchSize
		}
	}

	runOnce := func() {
		polled, err := s.consumer.Adapter.PollOutbounds(ctx, batchSize)
		if err != nil {
			logger.Warnw("worker_outbound_poll_failed", "error", err)
			return
		}
		logger.Debugw("worker_outbound_poll_done", "polled", polled)
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// handleTaskError 任务失败回调：重试耗尽时落库终态失败记录并告警
func (c *Consumer) handleTaskError(ctx context.Context, task *asynq.Task, err error) {
	if c == nil || task == nil {
		return
	}
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry {
		return
	}

	queueName, _ := asynq.GetQueueName(ctx)
	taskID, _ := asynq.GetTaskID(ctx)
	failure := &models.SyncJobFailure{
		Queue:     queueName,
		TaskType:  task.Type(),
		TaskID:    taskID,
		Payload:   string(task.Payload()),
		Retries:   retried,
		LastError: err.Error(),
		FailedAt:  time.Now(),
	}
	if createErr := c.JobFailureRepo.Create(failure); createErr != nil {
		logger.Errorw("worker_job_failure_record_failed",
			"task_type", task.Type(),
			"task_id", taskID,
			"error", createErr)
	}
	if c.Notifier != nil {
		c.Notifier.JobExhausted(queueName, task.Type(), taskID, retried, err.Error())
	}
}
