package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/constants"
	"github.com/zthsk/semantic-resume-screening/internal/tracing"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// ErrCacheMiss 表示缓存中没有对应的数据，调用方据此回退到完整计算。
var ErrCacheMiss = errors.New("缓存未命中")

// luaCheckAndAddMD5 原子地完成去重判断与登记。
// 返回1表示MD5已存在（重复提交），返回0表示首次出现并已加入集合。
// 无论哪个分支都刷新集合TTL，保证持续有流量时去重记录不过期。
const luaCheckAndAddMD5 = `
local exists = redis.call('SISMEMBER', KEYS[1], ARGV[1])
if exists == 0 then
	redis.call('SADD', KEYS[1], ARGV[1])
end
redis.call('EXPIRE', KEYS[1], ARGV[2])
return exists
`

// luaCompareAndDelete 仅当锁的持有者匹配时才删除，防止误删他人持有的锁。
const luaCompareAndDelete = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

// keySampleRates 按key前缀控制手工span的采样率。
// redisotel已经为每条命令生成span，这里的手工span只覆盖高层逻辑操作，
// 高频的去重检查采低一些，低频的匹配缓存采高一些。
var keySampleRates = map[string]float64{
	"screening:resume:": 0.1,
	"screening:match:":  0.5,
}

const defaultKeySampleRate = 0.05

var noopRedisTracer = noop.NewTracerProvider().Tracer("semantic-resume-screening/storage/redis")

// Redis 承担简历内容去重、匹配结果缓存与轻量分布式锁。
type Redis struct {
	client    *redis.Client
	md5Expire time.Duration

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewRedis 建立连接并注册redisotel命令级追踪，Ping确认可用后返回。
func NewRedis(ctx context.Context, cfg *config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Address,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:     time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:    time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("为Redis客户端注册链路追踪失败: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Ping Redis失败: %w", err)
	}

	md5Expire := constants.MD5RetentionDuration
	if cfg.MD5RecordExpireDays > 0 {
		md5Expire = time.Duration(cfg.MD5RecordExpireDays) * 24 * time.Hour
	}

	return &Redis{
		client:    client,
		md5Expire: md5Expire,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Client 暴露底层客户端，供需要直接执行命令的调用方使用。
func (r *Redis) Client() *redis.Client {
	return r.client
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) shouldTrace(key string) bool {
	rate := defaultKeySampleRate
	for prefix, p := range keySampleRates {
		if strings.HasPrefix(key, prefix) {
			rate = p
			break
		}
	}
	if rate >= 1 {
		return true
	}
	r.randMu.Lock()
	v := r.rand.Float64()
	r.randMu.Unlock()
	return v < rate
}

// startSpan 按key采样开启手工span，未命中采样时返回no-op span，
// 调用方可以无条件End。
func (r *Redis) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	if !r.shouldTrace(key) {
		return noopRedisTracer.Start(ctx, operation)
	}
	return otel.Tracer("semantic-resume-screening/storage/redis").Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("redis.key", tracing.SafeRedisKey(key))))
}

// CheckAndAddResumeMD5 原子地检查并登记简历内容MD5。
// 返回true表示该内容此前已提交过。
func (r *Redis) CheckAndAddResumeMD5(ctx context.Context, md5Hex string) (bool, error) {
	ctx, span := r.startSpan(ctx, "redis.check_and_add_md5", constants.KeyResumeMD5Set)
	defer span.End()

	result, err := r.client.Eval(ctx, luaCheckAndAddMD5,
		[]string{constants.KeyResumeMD5Set},
		md5Hex, int(r.md5Expire.Seconds())).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, fmt.Errorf("简历去重检查失败: %w", err)
	}
	exists, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("去重脚本返回了意外的类型: %T", result)
	}
	return exists == 1, nil
}

// RemoveResumeMD5 从去重集合移除一条记录，用于简历删除后允许重新提交。
func (r *Redis) RemoveResumeMD5(ctx context.Context, md5Hex string) error {
	if err := r.client.SRem(ctx, constants.KeyResumeMD5Set, md5Hex).Err(); err != nil {
		return fmt.Errorf("移除去重记录失败: %w", err)
	}
	return nil
}

// MapMD5ToSubmission 记录内容MD5到提交UUID的映射，重复提交时据此返回原记录。
// 使用SetNX保证首次提交的UUID不被覆盖。
func (r *Redis) MapMD5ToSubmission(ctx context.Context, md5Hex, submissionUUID string) error {
	key := fmt.Sprintf(constants.KeyResumeMD5ToUUID, md5Hex)
	if err := r.client.SetNX(ctx, key, submissionUUID, r.md5Expire).Err(); err != nil {
		return fmt.Errorf("记录MD5到提交UUID的映射失败: %w", err)
	}
	return nil
}

// GetSubmissionByMD5 查询内容MD5对应的提交UUID，未命中返回ErrCacheMiss。
func (r *Redis) GetSubmissionByMD5(ctx context.Context, md5Hex string) (string, error) {
	key := fmt.Sprintf(constants.KeyResumeMD5ToUUID, md5Hex)
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("查询MD5映射失败: %w", err)
	}
	return val, nil
}

// CacheMatchResults 以ZSET缓存一次岗位匹配的结果，score为匹配分，
// member为完整匹配结果的JSON，读取时按分数倒序还原排名。
// 先Del再ZAdd保证同一岗位的旧结果被整体替换。
func (r *Redis) CacheMatchResults(ctx context.Context, jobDigest string, matches []types.CandidateMatch, ttl time.Duration) error {
	if len(matches) == 0 {
		return nil
	}
	key := fmt.Sprintf(constants.KeyMatchResult, jobDigest)
	ctx, span := r.startSpan(ctx, "redis.cache_match_results", key)
	defer span.End()

	members := make([]redis.Z, 0, len(matches))
	for _, m := range matches {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("序列化匹配结果失败: %w", err)
		}
		members = append(members, redis.Z{Score: m.MatchScore, Member: string(payload)})
	}
	if ttl <= 0 {
		ttl = constants.MatchCacheDuration
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("写入匹配结果缓存失败: %w", err)
	}
	return nil
}

// GetCachedMatchResults 读取缓存的匹配结果，按分数倒序最多返回topN条。
// topN不大于0时返回全部，缓存为空返回ErrCacheMiss。
func (r *Redis) GetCachedMatchResults(ctx context.Context, jobDigest string, topN int) ([]types.CandidateMatch, error) {
	key := fmt.Sprintf(constants.KeyMatchResult, jobDigest)
	ctx, span := r.startSpan(ctx, "redis.get_match_results", key)
	defer span.End()

	stop := int64(-1)
	if topN > 0 {
		stop = int64(topN - 1)
	}
	raw, err := r.client.ZRevRange(ctx, key, 0, stop).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, fmt.Errorf("读取匹配结果缓存失败: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrCacheMiss
	}

	matches := make([]types.CandidateMatch, 0, len(raw))
	for _, item := range raw {
		var m types.CandidateMatch
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("解析缓存的匹配结果失败: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// MatchLockKey 返回某个岗位摘要对应的计算锁key。
func MatchLockKey(jobDigest string) string {
	return fmt.Sprintf(constants.KeyMatchLock, jobDigest)
}

// AcquireLock 尝试获取分布式锁，返回是否成功。token用于释放时校验持有者。
func (r *Redis) AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取分布式锁失败: %w", err)
	}
	return ok, nil
}

// ReleaseLock 释放分布式锁，仅当token与持有者一致时生效。
func (r *Redis) ReleaseLock(ctx context.Context, lockKey, token string) error {
	if err := r.client.Eval(ctx, luaCompareAndDelete, []string{lockKey}, token).Err(); err != nil {
		return fmt.Errorf("释放分布式锁失败: %w", err)
	}
	return nil
}
