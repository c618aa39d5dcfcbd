package handler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/matcher"
	"github.com/zthsk/semantic-resume-screening/internal/storage"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

const (
	// 匹配计算的分布式锁时长，防止同一岗位的并发请求重复算分
	matchLockTTL       = 30 * time.Second
	matchLockRetryWait = 200 * time.Millisecond

	defaultMatchTopN = 10
)

// MatchRequest 候选人匹配请求。resumes_dir为空时走向量库检索
type MatchRequest struct {
	Job        types.JobDescription `json:"job"`
	ResumesDir string               `json:"resumes_dir"`
	TopN       int                  `json:"top_n"`
}

// MatchResponse 匹配结果信封
type MatchResponse struct {
	Success         bool                   `json:"success"`
	Data            []types.CandidateMatch `json:"data,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ProcessingTime  float64                `json:"processing_time"`
	TotalCandidates int                    `json:"total_candidates"`
}

func failMatch(start time.Time, err error) *MatchResponse {
	return &MatchResponse{
		Success:        false,
		Error:          err.Error(),
		ProcessingTime: time.Since(start).Seconds(),
	}
}

func okMatch(start time.Time, matches []types.CandidateMatch) *MatchResponse {
	return &MatchResponse{
		Success:         true,
		Data:            matches,
		ProcessingTime:  time.Since(start).Seconds(),
		TotalCandidates: len(matches),
	}
}

// matchDigest 匹配请求的缓存键。岗位内容、简历来源与topN任一变化都算新请求
func matchDigest(job types.JobDescription, resumesDir string, topN int) string {
	payload, _ := json.Marshal(struct {
		Job        types.JobDescription `json:"job"`
		ResumesDir string               `json:"resumes_dir"`
		TopN       int                  `json:"top_n"`
	}{job, resumesDir, topN})
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// MatchCandidates 为岗位匹配候选人。
// 指定resumes_dir时从该目录加载解析结果打分；否则经向量库检索。
// 结果写入Redis缓存，同一请求在缓存期内直接命中
func (h *ScreeningHandler) MatchCandidates(ctx context.Context, req *MatchRequest) (*MatchResponse, error) {
	start := time.Now()

	var missing []string
	if req.Job.Title == "" {
		missing = append(missing, "title")
	}
	if req.Job.Description == "" {
		missing = append(missing, "description")
	}
	if len(req.Job.Requirements) == 0 {
		missing = append(missing, "requirements")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: 职位描述缺少必填字段: %v", ErrInvalidRequest, missing)
	}

	if h.embedder == nil {
		return nil, fmt.Errorf("%w: 嵌入服务未配置，无法执行匹配", ErrDependencyMissing)
	}
	if req.ResumesDir == "" && (h.storage == nil || h.storage.Qdrant == nil) {
		return nil, fmt.Errorf("%w: 未指定resumes_dir且向量库不可用", ErrDependencyMissing)
	}

	topN := req.TopN
	if topN <= 0 {
		topN = h.cfg.Matcher.TopN
	}
	if topN <= 0 {
		topN = defaultMatchTopN
	}

	digest := matchDigest(req.Job, req.ResumesDir, topN)

	if cached, ok := h.cachedMatches(ctx, digest, topN); ok {
		return okMatch(start, cached), nil
	}

	if release := h.lockMatch(ctx, digest); release != nil {
		defer release()
	} else if h.matchCacheReady() {
		// 没抢到锁说明别的请求正在算，稍等后再查一次缓存；
		// 仍未命中就自己算，重复计算无害
		time.Sleep(matchLockRetryWait)
		if cached, ok := h.cachedMatches(ctx, digest, topN); ok {
			return okMatch(start, cached), nil
		}
	}

	m := matcher.NewMatcher(h.embedder, h.cfg.Matcher)

	var matches []types.CandidateMatch
	if req.ResumesDir != "" {
		candidates, err := matcher.LoadCandidates(req.ResumesDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		matches, err = m.MatchCandidates(ctx, req.Job, candidates, topN)
		if err != nil {
			return failMatch(start, err), nil
		}
	} else {
		var err error
		matches, err = m.MatchViaSearch(ctx, req.Job, h.storage.Qdrant, topN)
		if err != nil {
			return failMatch(start, err), nil
		}
	}

	if h.matchCacheReady() && len(matches) > 0 {
		if err := h.storage.Redis.CacheMatchResults(ctx, digest, matches, 0); err != nil {
			logger.Warn().Err(err).Str("digest", digest).Msg("写入匹配结果缓存失败")
		}
	}

	return okMatch(start, matches), nil
}

func (h *ScreeningHandler) matchCacheReady() bool {
	return h.storage != nil && h.storage.Redis != nil
}

// cachedMatches 读缓存，命中返回(结果, true)。缓存未命中之外的错误只记日志
func (h *ScreeningHandler) cachedMatches(ctx context.Context, digest string, topN int) ([]types.CandidateMatch, bool) {
	if !h.matchCacheReady() {
		return nil, false
	}
	cached, err := h.storage.Redis.GetCachedMatchResults(ctx, digest, topN)
	if err != nil {
		if !errors.Is(err, storage.ErrCacheMiss) {
			logger.Warn().Err(err).Str("digest", digest).Msg("读取匹配结果缓存失败")
		}
		return nil, false
	}
	logger.Debug().Str("digest", digest).Int("count", len(cached)).Msg("匹配结果缓存命中")
	return cached, true
}

// lockMatch 尝试取匹配计算锁，成功返回释放函数，失败返回nil
func (h *ScreeningHandler) lockMatch(ctx context.Context, digest string) func() {
	if !h.matchCacheReady() {
		return nil
	}

	token := uuid.Must(uuid.NewV4()).String()
	lockKey := storage.MatchLockKey(digest)

	ok, err := h.storage.Redis.AcquireLock(ctx, lockKey, token, matchLockTTL)
	if err != nil {
		logger.Warn().Err(err).Str("digest", digest).Msg("获取匹配锁失败")
		return nil
	}
	if !ok {
		return nil
	}
	return func() {
		if err := h.storage.Redis.ReleaseLock(ctx, lockKey, token); err != nil {
			logger.Warn().Err(err).Str("digest", digest).Msg("释放匹配锁失败")
		}
	}
}
