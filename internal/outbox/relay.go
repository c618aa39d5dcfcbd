package outbox

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/storage"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	defaultMaxRetry        = 5
)

// Relay 轮询发件箱表，把待发送的事件发布到消息代理。
// 拉取与状态回写在同一个数据库事务内完成，配合 FOR UPDATE SKIP LOCKED，
// 多实例部署时各自消费不同的行，互不阻塞也不重复。
type Relay struct {
	store           *storage.MySQL
	publisher       *storage.RabbitMQ
	pollingInterval time.Duration
	batchSize       int
	maxRetry        int
	tracer          trace.Tracer

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// RelayOption 调整中继行为的函数式选项。
type RelayOption func(*Relay)

// WithPollingInterval 覆盖默认的5秒轮询间隔。
func WithPollingInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 覆盖每次轮询处理的消息条数。
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMaxRetry 覆盖消息进入FAILED终态前的最大发布重试次数。
func WithMaxRetry(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.maxRetry = n
		}
	}
}

// NewRelay 创建发件箱中继。
func NewRelay(store *storage.MySQL, publisher *storage.RabbitMQ, opts ...RelayOption) *Relay {
	r := &Relay{
		store:           store,
		publisher:       publisher,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		maxRetry:        defaultMaxRetry,
		tracer:          otel.Tracer("semantic-resume-screening/outbox"),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 启动后台轮询协程。ctx取消或Stop被调用时协程退出。
func (r *Relay) Start(ctx context.Context) {
	logger.Info().
		Dur("interval", r.pollingInterval).
		Int("batch_size", r.batchSize).
		Msg("发件箱中继已启动")

	ticker := time.NewTicker(r.pollingInterval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.processBatch(ctx); err != nil {
					logger.Warn().Err(err).Msg("发件箱批次处理失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待在途批次结束，重复调用安全。
func (r *Relay) Stop() {
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
		logger.Info().Msg("发件箱中继已停止")
	})
}

// processBatch 在单个事务内取出一批PENDING消息、逐条发布并回写状态。
// 发布经过代理确认才标记SENT；确认失败累加重试，达到上限转FAILED。
// 空轮询不创建追踪span。
func (r *Relay) processBatch(ctx context.Context) error {
	return r.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages, err := r.store.FetchPendingOutbox(tx, r.batchSize)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}

		ctx, span := r.tracer.Start(ctx, "outbox.process_batch",
			trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))))
		defer span.End()

		logger.Debug().Int("count", len(messages)).Msg("取到待发送的发件箱消息")

		for i := range messages {
			msg := &messages[i]
			publishErr := r.publisher.PublishWithConfirm(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), msg.MessageID)
			if publishErr != nil {
				logger.Warn().Err(publishErr).
					Str("message_id", msg.MessageID).
					Str("aggregate_id", msg.AggregateID).
					Int("retry_count", msg.RetryCount+1).
					Msg("发布发件箱消息失败")
				if err := r.store.MarkOutboxRetry(tx, msg, publishErr, r.maxRetry); err != nil {
					return err
				}
				continue
			}
			if err := r.store.MarkOutboxSent(tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}
