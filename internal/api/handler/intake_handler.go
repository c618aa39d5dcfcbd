package handler

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/zthsk/semantic-resume-screening/internal/constants"
	"github.com/zthsk/semantic-resume-screening/internal/llm"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/storage"
	"github.com/zthsk/semantic-resume-screening/internal/storage/models"
	"github.com/zthsk/semantic-resume-screening/internal/tracing"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

const (
	defaultPrefetchCount   = 10
	defaultConsumerWorkers = 4

	// 去重集合TTL的兜底检查周期
	md5CleanupInterval = 24 * time.Hour
)

// ResumeIntakeResponse 异步接单的受理结果
type ResumeIntakeResponse struct {
	SubmissionUUID string `json:"submission_uuid"`
	Status         string `json:"status"`
}

// SubmissionStatusResponse 提交状态查询结果
type SubmissionStatusResponse struct {
	SubmissionUUID string          `json:"submission_uuid"`
	Filename       string          `json:"filename"`
	Status         string          `json:"status"`
	Summary        string          `json:"summary,omitempty"`
	ParsedData     json.RawMessage `json:"parsed_data,omitempty"`
	LLMProvider    string          `json:"llm_provider,omitempty"`
	LLMModel       string          `json:"llm_model,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	DownloadURL    string          `json:"download_url,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (h *ScreeningHandler) canIntake() bool {
	return h.storage != nil && h.storage.HasPersistence()
}

func (h *ScreeningHandler) eventsExchange() string {
	if h.cfg.RabbitMQ.EventsExchange != "" {
		return h.cfg.RabbitMQ.EventsExchange
	}
	return constants.EventsExchange
}

func (h *ScreeningHandler) processQueue() string {
	if h.cfg.RabbitMQ.ProcessQueue != "" {
		return h.cfg.RabbitMQ.ProcessQueue
	}
	return constants.ResumeProcessQueue
}

// HandleResumeIntake 受理一份简历：MD5去重、上传原始文件到MinIO、
// 落提交记录并经发件箱投递处理事件。重复文件直接跳过并返回已有的提交UUID
func (h *ScreeningHandler) HandleResumeIntake(ctx context.Context, file io.Reader, filename string) (*ResumeIntakeResponse, error) {
	if !h.canIntake() {
		return nil, fmt.Errorf("%w: 持久化存储未就绪，异步接单不可用", ErrDependencyMissing)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: 上传文件为空", ErrInvalidRequest)
	}

	sum := md5.Sum(data)
	md5Hex := hex.EncodeToString(sum[:])

	if h.storage.Redis != nil {
		dup, err := h.storage.Redis.CheckAndAddResumeMD5(ctx, md5Hex)
		if err != nil {
			return nil, fmt.Errorf("去重检查失败: %w", err)
		}
		if dup {
			existing, err := h.storage.Redis.GetSubmissionByMD5(ctx, md5Hex)
			if err != nil && !errors.Is(err, storage.ErrCacheMiss) {
				logger.Warn().Err(err).Str("md5", md5Hex).Msg("查询重复简历的提交UUID失败")
			}
			logger.Info().Str("md5", md5Hex).Str("filename", filename).Msg("检测到重复简历，跳过处理")
			return &ResumeIntakeResponse{
				SubmissionUUID: existing,
				Status:         constants.IntakeStatusDuplicate,
			}, nil
		}
	}

	// 后续步骤失败要把MD5撤回，否则这份简历再也传不上来
	rollbackMD5 := func() {
		if h.storage.Redis == nil {
			return
		}
		if err := h.storage.Redis.RemoveResumeMD5(ctx, md5Hex); err != nil {
			logger.Warn().Err(err).Str("md5", md5Hex).Msg("回滚去重记录失败")
		}
	}

	submissionUUID := uuid.Must(uuid.NewV7()).String()

	objectKey, _, err := h.storage.MinIO.UploadResumeFile(ctx, submissionUUID, filename, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		rollbackMD5()
		return nil, fmt.Errorf("上传原始简历失败: %w", err)
	}

	event := storage.ResumeUploadedEvent{
		SubmissionUUID: submissionUUID,
		Filename:       filename,
		RawObjectKey:   objectKey,
		ContentMD5:     md5Hex,
		UploadedAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		rollbackMD5()
		return nil, fmt.Errorf("序列化上传事件失败: %w", err)
	}

	err = h.storage.MySQL.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := h.storage.MySQL.CreateSubmission(ctx, tx, &models.ResumeSubmission{
			SubmissionUUID: submissionUUID,
			Filename:       filename,
			ContentMD5:     md5Hex,
			RawObjectKey:   objectKey,
			Status:         constants.SubmissionStatusPending,
		}); err != nil {
			return err
		}
		return h.storage.MySQL.CreateOutboxMessage(ctx, tx, &models.OutboxMessage{
			AggregateID:      submissionUUID,
			EventType:        constants.EventTypeResumeUploaded,
			Payload:          string(payload),
			TargetExchange:   h.eventsExchange(),
			TargetRoutingKey: constants.RoutingKeyUploaded,
		})
	})
	if err != nil {
		rollbackMD5()
		return nil, fmt.Errorf("登记简历提交失败: %w", err)
	}

	if h.storage.Redis != nil {
		if err := h.storage.Redis.MapMD5ToSubmission(ctx, md5Hex, submissionUUID); err != nil {
			logger.Warn().Err(err).Str("submission_uuid", submissionUUID).Msg("写入MD5映射失败")
		}
	}

	logger.Info().
		Str("submission_uuid", submissionUUID).
		Str("filename", filename).
		Str("object_key", objectKey).
		Msg("简历已接收，等待异步处理")

	return &ResumeIntakeResponse{
		SubmissionUUID: submissionUUID,
		Status:         constants.IntakeStatusSubmitted,
	}, nil
}

// GetSubmission 查询提交状态与解析结果
func (h *ScreeningHandler) GetSubmission(ctx context.Context, submissionUUID string) (*SubmissionStatusResponse, error) {
	if !h.canIntake() {
		return nil, fmt.Errorf("%w: 持久化存储未就绪", ErrDependencyMissing)
	}
	if submissionUUID == "" {
		return nil, fmt.Errorf("%w: 缺少提交UUID", ErrInvalidRequest)
	}

	sub, err := h.storage.MySQL.GetSubmissionByUUID(ctx, submissionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 提交 %s", ErrNotFound, submissionUUID)
		}
		return nil, err
	}

	resp := &SubmissionStatusResponse{
		SubmissionUUID: sub.SubmissionUUID,
		Filename:       sub.Filename,
		Status:         sub.Status,
		Summary:        sub.Summary,
		LLMProvider:    sub.LLMProvider,
		LLMModel:       sub.LLMModel,
		ErrorMessage:   sub.ErrorMessage,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.UpdatedAt,
	}
	if len(sub.ParsedData) > 0 {
		resp.ParsedData = json.RawMessage(sub.ParsedData)
	} else if sub.ParsedObjectKey != "" {
		// 数据库里没有解析结果时回退到对象存储里的副本
		if data, err := h.storage.MinIO.DownloadParsed(ctx, sub.ParsedObjectKey); err != nil {
			logger.Warn().Err(err).Str("submission_uuid", sub.SubmissionUUID).Msg("读取解析结果对象失败")
		} else if json.Valid(data) {
			resp.ParsedData = json.RawMessage(data)
		}
	}

	if sub.RawObjectKey != "" {
		if u, err := h.storage.MinIO.PresignedRawURL(ctx, sub.RawObjectKey, 0); err != nil {
			logger.Warn().Err(err).Str("submission_uuid", sub.SubmissionUUID).Msg("生成原始简历下载链接失败")
		} else {
			resp.DownloadURL = u
		}
	}
	return resp, nil
}

// StartIntakeConsumer 声明消息拓扑并启动异步处理工作协程，
// 返回停止函数。工作协程数与预取量来自配置
func (h *ScreeningHandler) StartIntakeConsumer(ctx context.Context) (func(), error) {
	if !h.canIntake() || h.storage.RabbitMQ == nil {
		return nil, fmt.Errorf("%w: 消费者需要MySQL、MinIO与RabbitMQ", ErrDependencyMissing)
	}

	exchange := h.eventsExchange()
	queue := h.processQueue()
	if err := h.storage.RabbitMQ.EnsureEventTopology(exchange, queue, constants.RoutingKeyUploaded); err != nil {
		return nil, fmt.Errorf("声明消息拓扑失败: %w", err)
	}

	prefetch := h.cfg.RabbitMQ.PrefetchCount
	if prefetch <= 0 {
		prefetch = defaultPrefetchCount
	}
	workers := h.cfg.RabbitMQ.ConsumerWorkers
	if workers <= 0 {
		workers = defaultConsumerWorkers
	}

	logger.Info().
		Str("queue", queue).
		Int("prefetch", prefetch).
		Int("workers", workers).
		Msg("启动简历处理消费者")

	return h.storage.RabbitMQ.StartConsumer(ctx, queue, prefetch, workers, h.handleResumeUploaded)
}

// handleResumeUploaded 处理一条简历上传事件：下载原文、解析、摘要、
// 回写结果并发布解析完成事件。返回错误会触发一次重投
func (h *ScreeningHandler) handleResumeUploaded(ctx context.Context, d amqp.Delivery) error {
	tracer := otel.Tracer("semantic-resume-screening/api")
	ctx, span := tracer.Start(ctx, "intake.process_resume")
	defer span.End()

	var event storage.ResumeUploadedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		logger.Error().Err(err).Msg("简历上传事件格式无效，丢弃")
		return nil
	}
	span.SetAttributes(
		attribute.String("submission.uuid", event.SubmissionUUID),
		attribute.String("submission.filename", event.Filename),
	)

	if err := h.storage.MySQL.UpdateSubmissionStatus(ctx, event.SubmissionUUID, constants.SubmissionStatusProcessing); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error().Str("submission_uuid", event.SubmissionUUID).Msg("提交记录不存在，丢弃事件")
			return nil
		}
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return err
	}

	// 重复投递仍失败的消息会被丢弃，此时要把失败事件发出去
	final := d.Redelivered

	data, err := h.storage.MinIO.DownloadResume(ctx, event.RawObjectKey)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		h.failSubmission(ctx, &event, err, final)
		return err
	}

	content, err := h.resumeContent(ctx, event.Filename, data)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeParser)
		h.failSubmission(ctx, &event, err, final)
		return err
	}

	resume := h.resumeParser.ParseMarkdown(content)
	summary, provider, model := h.summarizeResume(ctx, resume)

	pr := types.ParsedResume{
		Filename:    event.Filename,
		ParsedAt:    time.Now().UTC(),
		Data:        resume,
		Summary:     summary,
		LLMProvider: provider,
		LLMModel:    model,
	}
	prJSON, err := pr.ToJSON()
	if err != nil {
		h.failSubmission(ctx, &event, err, final)
		return err
	}

	parsedKey := ""
	if key, err := h.storage.MinIO.UploadParsedJSON(ctx, event.SubmissionUUID, []byte(prJSON)); err != nil {
		logger.Warn().Err(err).Str("submission_uuid", event.SubmissionUUID).Msg("解析结果对象上传失败")
	} else {
		parsedKey = key
	}

	parsedData, err := models.StringToJSON(prJSON)
	if err != nil {
		h.failSubmission(ctx, &event, err, final)
		return err
	}

	parsedEvent := storage.ResumeParsedEvent{
		SubmissionUUID: event.SubmissionUUID,
		Filename:       event.Filename,
		Status:         constants.SubmissionStatusCompleted,
		Summary:        summary,
		ParsedAt:       time.Now().UTC(),
	}
	eventPayload, err := json.Marshal(parsedEvent)
	if err != nil {
		h.failSubmission(ctx, &event, err, final)
		return err
	}

	err = h.storage.MySQL.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := h.storage.MySQL.SaveParseResult(ctx, tx, event.SubmissionUUID, storage.ParseResultUpdate{
			ParsedData:      parsedData,
			ParsedObjectKey: parsedKey,
			Summary:         summary,
			LLMProvider:     provider,
			LLMModel:        model,
		}); err != nil {
			return err
		}
		return h.storage.MySQL.CreateOutboxMessage(ctx, tx, &models.OutboxMessage{
			AggregateID:      event.SubmissionUUID,
			EventType:        constants.EventTypeResumeParsed,
			Payload:          string(eventPayload),
			TargetExchange:   h.eventsExchange(),
			TargetRoutingKey: constants.RoutingKeyParsed,
		})
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		h.failSubmission(ctx, &event, err, final)
		return err
	}

	h.indexCandidate(ctx, event.Filename, resume, summary)

	logger.Info().
		Str("submission_uuid", event.SubmissionUUID).
		Str("filename", event.Filename).
		Str("provider", provider).
		Msg("简历解析完成")
	return nil
}

// resumeContent 把原始对象还原为markdown文本
func (h *ScreeningHandler) resumeContent(ctx context.Context, filename string, data []byte) (string, error) {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		text, _, err := h.pdfExtractor.ExtractTextFromBytes(ctx, data, filename)
		if err != nil {
			return "", fmt.Errorf("PDF文本提取失败: %w", err)
		}
		return text, nil
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("简历内容不是合法的UTF-8编码")
	}
	return string(data), nil
}

// summarizeResume 生成摘要，LLM不可用时降级为基础摘要
func (h *ScreeningHandler) summarizeResume(ctx context.Context, resume types.Resume) (summary, provider, model string) {
	s, err := h.summarizer.Summarize(ctx, types.NewSummaryRequest(resume))
	if err != nil {
		logger.Warn().Err(err).Msg("LLM摘要失败，降级为基础摘要")
		return llm.BasicSummary(resume), llm.FallbackProviderName, llm.FallbackModelName
	}
	return s, h.summarizer.CurrentProviderName(), h.summarizer.CurrentModel()
}

// indexCandidate 把候选人摘要向量写入向量库，失败只记日志
func (h *ScreeningHandler) indexCandidate(ctx context.Context, filename string, resume types.Resume, summary string) {
	if h.storage.Qdrant == nil || h.embedder == nil {
		return
	}

	vectors, err := h.embedder.EmbedStrings(ctx, []string{summary})
	if err != nil || len(vectors) != 1 {
		logger.Warn().Err(err).Str("filename", filename).Msg("候选人摘要向量化失败")
		return
	}

	if _, err := h.storage.Qdrant.UpsertCandidateVectors(ctx, []storage.CandidatePoint{{
		Filename: filename,
		Name:     resume.Name,
		Title:    resume.Title,
		Summary:  summary,
		Skills:   resume.Skills.Flatten(),
		Vector:   vectors[0],
	}}); err != nil {
		logger.Warn().Err(err).Str("filename", filename).Msg("候选人向量写入失败")
	}
}

// failSubmission 把提交标记为失败；消息不会再重投时追发一条失败事件
func (h *ScreeningHandler) failSubmission(ctx context.Context, event *storage.ResumeUploadedEvent, cause error, final bool) {
	if err := h.storage.MySQL.MarkSubmissionFailed(ctx, event.SubmissionUUID, cause.Error()); err != nil {
		logger.Warn().Err(err).Str("submission_uuid", event.SubmissionUUID).Msg("更新失败状态失败")
	}
	if !final {
		return
	}

	failedEvent := storage.ResumeParsedEvent{
		SubmissionUUID: event.SubmissionUUID,
		Filename:       event.Filename,
		Status:         constants.SubmissionStatusFailed,
		ErrorMessage:   cause.Error(),
		ParsedAt:       time.Now().UTC(),
	}
	payload, err := json.Marshal(failedEvent)
	if err != nil {
		return
	}
	if err := h.storage.MySQL.CreateOutboxMessage(ctx, nil, &models.OutboxMessage{
		AggregateID:      event.SubmissionUUID,
		EventType:        constants.EventTypeResumeParseFailed,
		Payload:          string(payload),
		TargetExchange:   h.eventsExchange(),
		TargetRoutingKey: constants.RoutingKeyParseFailed,
	}); err != nil {
		logger.Warn().Err(err).Str("submission_uuid", event.SubmissionUUID).Msg("写入失败事件失败")
	}
}

// StartMD5CleanupTask 周期性兜底去重集合的过期时间。
// 正常写入会刷新TTL，这里处理TTL意外丢失的情况。阻塞直到ctx取消
func (h *ScreeningHandler) StartMD5CleanupTask(ctx context.Context) {
	if h.storage == nil || h.storage.Redis == nil {
		return
	}

	ticker := time.NewTicker(md5CleanupInterval)
	defer ticker.Stop()
	logger.Info().Dur("interval", md5CleanupInterval).Msg("MD5清理任务已启动")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("MD5清理任务退出")
			return
		case <-ticker.C:
			h.ensureDedupTTL(ctx)
		}
	}
}

func (h *ScreeningHandler) ensureDedupTTL(ctx context.Context) {
	client := h.storage.Redis.Client()

	ttl, err := client.TTL(ctx, constants.KeyResumeMD5Set).Result()
	if err != nil {
		logger.Warn().Err(err).Msg("查询去重集合TTL失败")
		return
	}
	// TTL为负: -1表示键存在但没有过期时间，-2表示键不存在(Expire为空操作)
	if ttl >= 0 {
		return
	}
	if err := client.Expire(ctx, constants.KeyResumeMD5Set, constants.MD5RetentionDuration).Err(); err != nil {
		logger.Warn().Err(err).Msg("补写去重集合TTL失败")
		return
	}
	logger.Info().Msg("去重集合缺少过期时间，已补写")
}
