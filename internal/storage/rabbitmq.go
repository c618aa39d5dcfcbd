package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/tracing"
)

// confirmTimeout 等待代理发布确认的上限。
const confirmTimeout = 5 * time.Second

// DeliveryHandler 处理单条投递。返回错误时消息会被Nack。
type DeliveryHandler func(ctx context.Context, delivery amqp.Delivery) error

// RabbitMQ 封装事件发布与消费。普通发布走通道池，
// 需要代理确认的发布走单独的确认模式通道，拓扑声明结果在本地缓存。
type RabbitMQ struct {
	conn        *amqp.Connection
	channelPool sync.Pool

	topoMu      sync.Mutex
	exchangeMap map[string]bool
	queueMap    map[string]bool
	bindingMap  map[string]bool

	// 确认模式通道一旦开启无法退回普通模式，单独持有并串行使用
	confirmMu sync.Mutex
	confirmCh *amqp.Channel
	confirms  <-chan amqp.Confirmation
}

// NewRabbitMQ 建立连接并初始化通道池。
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接RabbitMQ失败: %w", err)
	}

	q := &RabbitMQ{
		conn:        conn,
		exchangeMap: make(map[string]bool),
		queueMap:    make(map[string]bool),
		bindingMap:  make(map[string]bool),
	}
	q.channelPool = sync.Pool{
		New: func() interface{} {
			ch, err := conn.Channel()
			if err != nil {
				logger.Error().Err(err).Msg("创建RabbitMQ通道失败")
				return nil
			}
			return ch
		},
	}
	return q, nil
}

func (q *RabbitMQ) getChannel() (*amqp.Channel, error) {
	for i := 0; i < 3; i++ {
		v := q.channelPool.Get()
		if v == nil {
			continue
		}
		ch, ok := v.(*amqp.Channel)
		if !ok || ch.IsClosed() {
			continue
		}
		return ch, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("创建RabbitMQ通道失败: %w", err)
	}
	return ch, nil
}

func (q *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch == nil || ch.IsClosed() {
		return
	}
	q.channelPool.Put(ch)
}

// EnsureExchange 声明交换机，同名声明只发往服务器一次。
func (q *RabbitMQ) EnsureExchange(name, kind string, durable bool) error {
	q.topoMu.Lock()
	defer q.topoMu.Unlock()
	if q.exchangeMap[name] {
		return nil
	}
	ch, err := q.getChannel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(name, kind, durable, false, false, false, nil); err != nil {
		return fmt.Errorf("声明交换机失败 (exchange=%s): %w", name, err)
	}
	q.putChannel(ch)
	q.exchangeMap[name] = true
	return nil
}

// EnsureQueue 声明队列。缓存命中时用被动声明校验队列仍然存在，
// 被外部删除后自动重新声明。
func (q *RabbitMQ) EnsureQueue(name string, durable bool) error {
	q.topoMu.Lock()
	defer q.topoMu.Unlock()
	if q.queueMap[name] {
		ch, err := q.getChannel()
		if err == nil {
			if _, derr := ch.QueueDeclarePassive(name, durable, false, false, false, nil); derr == nil {
				q.putChannel(ch)
				return nil
			}
			// 被动声明失败会关闭通道，不放回池
		}
		delete(q.queueMap, name)
	}
	ch, err := q.getChannel()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(name, durable, false, false, false, nil); err != nil {
		return fmt.Errorf("声明队列失败 (queue=%s): %w", name, err)
	}
	q.putChannel(ch)
	q.queueMap[name] = true
	return nil
}

// BindQueue 建立队列到交换机的绑定，重复绑定走本地缓存。
func (q *RabbitMQ) BindQueue(queueName, exchange, routingKey string) error {
	bindingKey := queueName + "|" + exchange + "|" + routingKey
	q.topoMu.Lock()
	defer q.topoMu.Unlock()
	if q.bindingMap[bindingKey] {
		return nil
	}
	ch, err := q.getChannel()
	if err != nil {
		return err
	}
	if err := ch.QueueBind(queueName, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("绑定队列失败 (queue=%s exchange=%s key=%s): %w", queueName, exchange, routingKey, err)
	}
	q.putChannel(ch)
	q.bindingMap[bindingKey] = true
	return nil
}

// EnsureEventTopology 一次声明事件交换机、处理队列与全部绑定。
func (q *RabbitMQ) EnsureEventTopology(exchange, queue string, routingKeys ...string) error {
	if err := q.EnsureExchange(exchange, "topic", true); err != nil {
		return err
	}
	if err := q.EnsureQueue(queue, true); err != nil {
		return err
	}
	for _, key := range routingKeys {
		if err := q.BindQueue(queue, exchange, key); err != nil {
			return err
		}
	}
	return nil
}

// PublishMessage 发布原始消息体，persistent为true时落盘存储。
func (q *RabbitMQ) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte, persistent bool) error {
	ch, err := q.getChannel()
	if err != nil {
		return err
	}
	defer q.putChannel(ch)

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}
	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("发布消息失败 (exchange=%s key=%s): %w", exchange, routingKey, err)
	}
	return nil
}

// PublishJSON 序列化负载后发布。
func (q *RabbitMQ) PublishJSON(ctx context.Context, exchange, routingKey string, payload interface{}, persistent bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化消息负载失败: %w", err)
	}
	return q.PublishMessage(ctx, exchange, routingKey, body, persistent)
}

func (q *RabbitMQ) confirmChannel() (*amqp.Channel, <-chan amqp.Confirmation, error) {
	if q.confirmCh != nil && !q.confirmCh.IsClosed() {
		return q.confirmCh, q.confirms, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("创建确认模式通道失败: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("开启发布确认模式失败: %w", err)
	}
	q.confirmCh = ch
	q.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 16))
	return ch, q.confirms, nil
}

// PublishWithConfirm 持久化发布并等待代理确认，发件箱中继依赖这个语义：
// 只有拿到Ack才能把消息标记为已发送。
func (q *RabbitMQ) PublishWithConfirm(ctx context.Context, exchange, routingKey string, body []byte, messageID string) error {
	q.confirmMu.Lock()
	defer q.confirmMu.Unlock()

	ch, confirms, err := q.confirmChannel()
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer("semantic-resume-screening/storage/rabbitmq").Start(ctx, "rabbitmq.publish_confirm",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", exchange),
			attribute.String("messaging.rabbitmq.routing_key", routingKey),
			attribute.String("messaging.message_id", messageID),
		))
	defer span.End()

	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		return fmt.Errorf("发布消息失败 (exchange=%s key=%s): %w", exchange, routingKey, err)
	}

	select {
	case confirmation, ok := <-confirms:
		if !ok {
			err := fmt.Errorf("确认通道已关闭 (exchange=%s key=%s)", exchange, routingKey)
			tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
			return err
		}
		if !confirmation.Ack {
			tracing.RecordPublishNack(span, messageID, "")
			return fmt.Errorf("消息未被代理确认 (exchange=%s key=%s)", exchange, routingKey)
		}
	case <-time.After(confirmTimeout):
		tracing.RecordPublishTimeout(span, messageID, confirmTimeout)
		return fmt.Errorf("等待发布确认超时 (exchange=%s key=%s)", exchange, routingKey)
	case <-ctx.Done():
		tracing.RecordError(span, ctx.Err(), tracing.ErrorTypeTimeout)
		return fmt.Errorf("等待发布确认被取消: %w", ctx.Err())
	}
	return nil
}

// StartConsumer 订阅队列并启动workers个协程并发处理。
// 处理成功Ack；首次失败Nack并重新入队；重复投递仍失败则丢弃，避免毒消息无限循环。
// 返回的stop函数幂等，会关闭消费通道并等待全部协程退出。
func (q *RabbitMQ) StartConsumer(ctx context.Context, queueName string, prefetchCount, workers int, handler DeliveryHandler) (func(), error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("创建消费通道失败: %w", err)
	}
	if prefetchCount <= 0 {
		prefetchCount = 1
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("订阅队列失败 (queue=%s): %w", queueName, err)
	}

	if workers <= 0 {
		workers = 1
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case <-stopCh:
					return
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					if err := handler(ctx, d); err != nil {
						requeue := !d.Redelivered
						logger.Warn().Err(err).
							Str("queue", queueName).
							Int("worker", workerID).
							Bool("requeue", requeue).
							Msg("消息处理失败")
						_ = d.Nack(false, requeue)
						continue
					}
					_ = d.Ack(false)
				}
			}
		}(i)
	}
	logger.Info().Str("queue", queueName).Int("workers", workers).Int("prefetch", prefetchCount).Msg("消费者已启动")

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(stopCh)
			_ = ch.Close()
			wg.Wait()
			logger.Info().Str("queue", queueName).Msg("消费者已停止")
		})
	}
	return stop, nil
}

func (q *RabbitMQ) Close() error {
	q.confirmMu.Lock()
	if q.confirmCh != nil && !q.confirmCh.IsClosed() {
		_ = q.confirmCh.Close()
	}
	q.confirmMu.Unlock()

	if q.conn != nil && !q.conn.IsClosed() {
		return q.conn.Close()
	}
	return nil
}
