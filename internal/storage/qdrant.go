package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/matcher"
	"github.com/zthsk/semantic-resume-screening/internal/tracing"
)

// candidateNamespace 固定命名空间，点ID由它和文件名经UUIDv5派生。
// 同一份简历重复入库会覆盖旧向量，而不是累积重复点。
var candidateNamespace = uuid.Must(uuid.FromString("9e336bdc-4a71-44e8-854d-2f16c5a0d3b7"))

// CandidatePoint 一条候选人向量及检索时需要回显的画像字段。
type CandidatePoint struct {
	Filename string
	Name     string
	Title    string
	Summary  string
	Skills   []string
	Vector   []float64
}

// Qdrant 通过HTTP API维护候选人向量集合。
type Qdrant struct {
	endpoint    string
	collection  string
	dimension   int
	apiKey      string
	distance    string
	searchLimit int
	client      *http.Client
}

// 编译期确认Qdrant满足匹配器的向量检索契约。
var _ matcher.VectorSearcher = (*Qdrant)(nil)

// QdrantOption 调整客户端行为的函数式选项。
type QdrantOption func(*Qdrant)

// WithHTTPTimeout 覆盖默认的30秒HTTP超时。
func WithHTTPTimeout(d time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.client.Timeout = d
	}
}

// WithDistanceMetric 覆盖默认的Cosine距离。
func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distance = metric
	}
}

// NewQdrant 创建客户端并确保集合存在。
// 集合已存在但维度与配置不一致时拒绝启动，避免写入错误维度的向量。
func NewQdrant(ctx context.Context, cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("Qdrant集合名不能为空")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("Qdrant向量维度必须为正数 (dimension=%d)", cfg.Dimension)
	}

	q := &Qdrant{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		collection:  cfg.Collection,
		dimension:   cfg.Dimension,
		apiKey:      cfg.APIKey,
		distance:    "Cosine",
		searchLimit: cfg.DefaultSearchLimit,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
	if q.searchLimit <= 0 {
		q.searchLimit = 10
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// qdrantStatusError 携带非2xx响应的状态码，供调用方区分404等分支。
type qdrantStatusError struct {
	StatusCode int
	Body       string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.StatusCode, e.Body)
}

// doRequest 执行一次Qdrant API调用：注入追踪上下文、检查状态码、解析响应。
func (q *Qdrant) doRequest(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("序列化Qdrant请求体失败: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("构造Qdrant请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	span := trace.SpanFromContext(ctx)
	resp, err := q.client.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("请求Qdrant失败 (%s %s): %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		statusErr := &qdrantStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
		err := fmt.Errorf("Qdrant返回异常状态 (%s %s): %w", method, path, statusErr)
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("解析Qdrant响应失败 (%s %s): %w", method, path, err)
		}
	}
	return nil
}

type qdrantCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	var info qdrantCollectionInfo
	err := q.doRequest(ctx, http.MethodGet, "/collections/"+q.collection, nil, &info)
	if err == nil {
		if size := info.Result.Config.Params.Vectors.Size; size > 0 && size != q.dimension {
			return fmt.Errorf("Qdrant集合维度与配置不一致 (collection=%s existing=%d configured=%d)", q.collection, size, q.dimension)
		}
		return nil
	}

	var statusErr *qdrantStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return q.createCollection(ctx)
	}
	return fmt.Errorf("检查Qdrant集合失败 (collection=%s): %w", q.collection, err)
}

func (q *Qdrant) createCollection(ctx context.Context) error {
	payload := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.dimension,
			"distance": q.distance,
		},
		"optimizers_config": map[string]interface{}{
			"default_segment_number": 2,
		},
	}
	if err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collection, payload, nil); err != nil {
		return fmt.Errorf("创建Qdrant集合失败 (collection=%s): %w", q.collection, err)
	}
	logger.Info().
		Str("collection", q.collection).
		Int("dimension", q.dimension).
		Str("distance", q.distance).
		Msg("已创建Qdrant集合")
	return nil
}

// PointIDForFilename 由固定命名空间和文件名派生确定性的点ID。
func PointIDForFilename(filename string) string {
	return uuid.NewV5(candidateNamespace, filename).String()
}

// UpsertCandidateVectors 批量写入候选人向量，按文件名派生的点ID幂等覆盖。
// 返回写入的点ID列表，顺序与入参一致。
func (q *Qdrant) UpsertCandidateVectors(ctx context.Context, points []CandidatePoint) ([]string, error) {
	if len(points) == 0 {
		return nil, nil
	}
	ctx, span := otel.Tracer("semantic-resume-screening/storage/qdrant").Start(ctx, "qdrant.upsert_candidates",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("qdrant.collection", q.collection),
			attribute.Int("qdrant.point_count", len(points)),
		))
	defer span.End()

	qdrantPoints := make([]map[string]interface{}, 0, len(points))
	pointIDs := make([]string, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != q.dimension {
			err := fmt.Errorf("向量维度不匹配 (filename=%s got=%d want=%d)", p.Filename, len(p.Vector), q.dimension)
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return nil, err
		}
		id := PointIDForFilename(p.Filename)
		pointIDs = append(pointIDs, id)

		skills := p.Skills
		if skills == nil {
			skills = []string{}
		}
		qdrantPoints = append(qdrantPoints, map[string]interface{}{
			"id":     id,
			"vector": p.Vector,
			"payload": map[string]interface{}{
				"filename": p.Filename,
				"name":     p.Name,
				"title":    p.Title,
				"summary":  p.Summary,
				"skills":   skills,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	if err := q.doRequest(ctx, http.MethodPut, path, map[string]interface{}{"points": qdrantPoints}, nil); err != nil {
		return nil, fmt.Errorf("写入候选人向量失败: %w", err)
	}
	logger.Debug().Int("count", len(pointIDs)).Str("collection", q.collection).Msg("候选人向量已写入")
	return pointIDs, nil
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      string                 `json:"id"`
		Score   float64                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
}

// SearchCandidates 按余弦相似度检索候选人，limit不大于0时使用配置的默认值。
func (q *Qdrant) SearchCandidates(ctx context.Context, vector []float64, limit int) ([]matcher.VectorHit, error) {
	if limit <= 0 {
		limit = q.searchLimit
	}
	ctx, span := otel.Tracer("semantic-resume-screening/storage/qdrant").Start(ctx, "qdrant.search_candidates",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("qdrant.collection", q.collection),
			attribute.Int("qdrant.limit", limit),
		))
	defer span.End()

	payload := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp qdrantSearchResponse
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.doRequest(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	hits := make([]matcher.VectorHit, 0, len(resp.Result))
	for _, item := range resp.Result {
		hit := matcher.VectorHit{Cosine: item.Score}
		if v, ok := item.Payload["filename"].(string); ok {
			hit.Filename = v
		}
		if v, ok := item.Payload["name"].(string); ok {
			hit.Name = v
		}
		if v, ok := item.Payload["title"].(string); ok {
			hit.Title = v
		}
		if v, ok := item.Payload["summary"].(string); ok {
			hit.Summary = v
		}
		if raw, ok := item.Payload["skills"].([]interface{}); ok {
			skills := make([]string, 0, len(raw))
			for _, s := range raw {
				if sv, ok := s.(string); ok {
					skills = append(skills, sv)
				}
			}
			hit.Skills = skills
		}
		hits = append(hits, hit)
	}
	span.SetAttributes(attribute.Int("qdrant.hit_count", len(hits)))
	return hits, nil
}

// DeleteByFilename 删除某份简历对应的向量点。
func (q *Qdrant) DeleteByFilename(ctx context.Context, filename string) error {
	id := PointIDForFilename(filename)
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection)
	payload := map[string]interface{}{"points": []string{id}}
	if err := q.doRequest(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("删除候选人向量失败 (filename=%s): %w", filename, err)
	}
	return nil
}
