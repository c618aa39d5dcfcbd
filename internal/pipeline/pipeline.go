package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/constants"
	"github.com/zthsk/semantic-resume-screening/internal/generator"
	"github.com/zthsk/semantic-resume-screening/internal/llm"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/parser"
	"github.com/zthsk/semantic-resume-screening/internal/storage"
	"github.com/zthsk/semantic-resume-screening/internal/storage/models"
	"github.com/zthsk/semantic-resume-screening/internal/tracing"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// 摘要请求的批处理默认参数
const (
	summaryMaxLength = 250
	summaryTone      = "professional"
)

var summaryFocusAreas = []string{"technical skills", "achievements", "experience"}

// Statistics 一次流水线执行的计数汇总。
type Statistics struct {
	TotalResumes         int            `json:"total_resumes"`
	Generated            int            `json:"generated"`
	Parsed               int            `json:"parsed"`
	Summarized           int            `json:"summarized"`
	Duplicates           int            `json:"duplicates"`
	ExecutionTimeSeconds float64        `json:"execution_time_seconds"`
	FilesCreated         map[string]int `json:"files_created"`
}

// Report 流水线执行报告，落盘为 pipeline_report.json。
type Report struct {
	ExecutionTime      string            `json:"execution_time"`
	PipelineVersion    string            `json:"pipeline_version"`
	Statistics         Statistics        `json:"statistics"`
	OutputDirectories  map[string]string `json:"output_directories"`
	LLMProvider        string            `json:"llm_provider"`
	AvailableProviders map[string]bool   `json:"available_providers"`
}

// Pipeline 批量简历处理流水线：生成、解析、摘要、落盘，
// 以及可选的去重、对象存储、数据库与向量库登记。
type Pipeline struct {
	cfg           *config.Config
	gen           *generator.ResumeGenerator
	parser        *parser.ResumeParser
	summarizer    *llm.Summarizer
	store         *storage.Storage
	embedder      embedding.Embedder
	tracer        trace.Tracer
	summarizeWait time.Duration
}

// New 组装流水线。store与embedder允许为nil，对应的持久化环节会整体跳过。
func New(cfg *config.Config, summarizer *llm.Summarizer, store *storage.Storage, embedder embedding.Embedder) *Pipeline {
	return &Pipeline{
		cfg:           cfg,
		gen:           generator.NewResumeGenerator(cfg.Generator.Seed),
		parser:        parser.NewResumeParser(),
		summarizer:    summarizer,
		store:         store,
		embedder:      embedder,
		tracer:        otel.Tracer("semantic-resume-screening/pipeline"),
		summarizeWait: config.GetDuration(cfg.Pipeline.SummarizeWait, 500*time.Millisecond),
	}
}

// Run 执行完整流水线并写出报告。单份简历的失败只影响自身，批次继续。
func (p *Pipeline) Run(ctx context.Context, count int, outputDir string) (*Report, error) {
	start := time.Now()
	if count <= 0 {
		return nil, fmt.Errorf("生成数量必须为正数 (count=%d)", count)
	}
	if outputDir == "" {
		outputDir = p.cfg.Pipeline.OutputDir
	}
	if outputDir == "" {
		outputDir = "pipeline_output"
	}

	dirs := map[string]string{
		"resumes":   filepath.Join(outputDir, "resumes"),
		"parsed":    filepath.Join(outputDir, "parsed"),
		"summaries": filepath.Join(outputDir, "summaries"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建输出目录失败 (dir=%s): %w", dir, err)
		}
	}

	stats := Statistics{
		TotalResumes: count,
		FilesCreated: map[string]int{"resumes": 0, "parsed": 0, "summaries": 0},
	}

	resumes := p.gen.GenerateMultiple(count)
	stats.Generated = len(resumes)
	logger.Info().Int("count", len(resumes)).Str("output_dir", outputDir).Msg("已生成合成简历，开始处理")

	for i, resume := range resumes {
		p.processDocument(ctx, resume, i, dirs, &stats)
		// 给LLM提供方留出限流余量
		if i < len(resumes)-1 && p.summarizeWait > 0 {
			time.Sleep(p.summarizeWait)
		}
	}

	elapsed := time.Since(start)
	stats.ExecutionTimeSeconds = math.Round(elapsed.Seconds()*100) / 100

	report := &Report{
		ExecutionTime:      time.Now().UTC().Format(time.RFC3339),
		PipelineVersion:    constants.PipelineVersion,
		Statistics:         stats,
		OutputDirectories:  dirs,
		LLMProvider:        p.summarizer.CurrentProviderName(),
		AvailableProviders: p.summarizer.AvailableProviders(),
	}
	if err := p.writeReport(outputDir, report); err != nil {
		return report, err
	}

	logger.Info().
		Int("parsed", stats.Parsed).
		Int("summarized", stats.Summarized).
		Int("duplicates", stats.Duplicates).
		Float64("seconds", stats.ExecutionTimeSeconds).
		Msg("流水线执行完成")
	return report, nil
}

// processDocument 处理单份简历：落盘markdown、去重、解析、摘要、写输出、登记存储。
func (p *Pipeline) processDocument(ctx context.Context, resume types.Resume, index int, dirs map[string]string, stats *Statistics) {
	baseName := fmt.Sprintf("%s_%03d", safeName(resume.Name), index+1)
	mdName := baseName + ".md"

	ctx, span := p.tracer.Start(ctx, "pipeline.process_document",
		trace.WithAttributes(
			attribute.String("resume.filename", mdName),
			attribute.Int("resume.index", index),
		))
	defer span.End()

	markdown := generator.RenderMarkdown(resume)
	mdPath := filepath.Join(dirs["resumes"], mdName)
	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		logger.Error().Err(err).Str("path", mdPath).Msg("写入简历markdown失败")
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return
	}
	stats.FilesCreated["resumes"]++

	md5Hex := fmt.Sprintf("%x", md5.Sum([]byte(markdown)))
	if p.store != nil && p.store.Redis != nil {
		duplicate, err := p.store.Redis.CheckAndAddResumeMD5(ctx, md5Hex)
		if err != nil {
			// 去重服务异常时按首次提交处理
			logger.Warn().Err(err).Str("filename", mdName).Msg("去重检查失败，跳过去重")
		} else if duplicate {
			logger.Info().Str("filename", mdName).Str("md5", md5Hex).Msg("内容重复，跳过该简历")
			stats.Duplicates++
			return
		}
	}

	parsed, err := p.parser.ParseFile(mdPath)
	if err != nil {
		logger.Error().Err(err).Str("filename", mdName).Msg("解析简历失败")
		tracing.RecordError(span, err, tracing.ErrorTypeParser)
		return
	}
	stats.Parsed++

	summary, provider, model := p.summarize(ctx, parsed, span)
	if summary != "" {
		stats.Summarized++
	}

	parsedResume := types.ParsedResume{
		Filename:    mdName,
		ParsedAt:    time.Now().UTC(),
		Data:        parsed,
		Summary:     summary,
		LLMProvider: provider,
		LLMModel:    model,
	}
	prJSON, err := parsedResume.ToJSON()
	if err != nil {
		logger.Error().Err(err).Str("filename", mdName).Msg("序列化解析结果失败")
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return
	}

	parsedPath := filepath.Join(dirs["parsed"], baseName+"_parsed.json")
	if err := os.WriteFile(parsedPath, []byte(prJSON), 0o644); err != nil {
		logger.Error().Err(err).Str("path", parsedPath).Msg("写入解析结果失败")
		return
	}
	stats.FilesCreated["parsed"]++

	summaryPath := filepath.Join(dirs["summaries"], baseName+"_summary.txt")
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		logger.Error().Err(err).Str("path", summaryPath).Msg("写入摘要失败")
		return
	}
	stats.FilesCreated["summaries"]++

	p.persistDocument(ctx, persistInput{
		filename:   mdName,
		markdown:   markdown,
		md5Hex:     md5Hex,
		parsedJSON: prJSON,
		summary:    summary,
		provider:   provider,
		model:      model,
		parsed:     parsed,
	})
}

// summarize 请求LLM摘要，失败时退回确定性的基础摘要。
func (p *Pipeline) summarize(ctx context.Context, resume types.Resume, span trace.Span) (summary, provider, model string) {
	req := types.SummaryRequest{
		ResumeData: resume,
		MaxLength:  summaryMaxLength,
		FocusAreas: summaryFocusAreas,
		Tone:       summaryTone,
	}
	summary, err := p.summarizer.Summarize(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Str("name", resume.Name).Msg("LLM摘要失败，使用基础摘要")
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return llm.BasicSummary(resume), llm.FallbackProviderName, llm.FallbackModelName
	}
	return summary, p.summarizer.CurrentProviderName(), p.summarizer.CurrentModel()
}

type persistInput struct {
	filename   string
	markdown   string
	md5Hex     string
	parsedJSON string
	summary    string
	provider   string
	model      string
	parsed     types.Resume
}

// persistDocument 把一份处理完的简历登记到启用的存储后端。
// 任何一步失败只记录日志，不影响本地输出结果。
func (p *Pipeline) persistDocument(ctx context.Context, in persistInput) {
	if p.store == nil {
		return
	}

	submissionUUID := uuid.Must(uuid.NewV7()).String()

	var rawKey, parsedKey string
	if p.store.MinIO != nil {
		var err error
		rawKey, _, err = p.store.MinIO.UploadResumeFile(ctx, submissionUUID, in.filename, strings.NewReader(in.markdown), int64(len(in.markdown)))
		if err != nil {
			logger.Warn().Err(err).Str("filename", in.filename).Msg("上传原始简历失败")
		}
		parsedKey, err = p.store.MinIO.UploadParsedJSON(ctx, submissionUUID, []byte(in.parsedJSON))
		if err != nil {
			logger.Warn().Err(err).Str("filename", in.filename).Msg("上传解析结果失败")
		}
	}

	if p.store.MySQL != nil {
		parsedData, err := models.StringToJSON(in.parsedJSON)
		if err != nil {
			logger.Warn().Err(err).Str("filename", in.filename).Msg("解析结果不是合法JSON，跳过数据库登记")
		} else {
			event := storage.ResumeParsedEvent{
				SubmissionUUID: submissionUUID,
				Filename:       in.filename,
				Status:         constants.SubmissionStatusCompleted,
				Summary:        in.summary,
				ParsedAt:       time.Now().UTC(),
			}
			payload, _ := json.Marshal(event)

			err = p.store.MySQL.WithTransaction(ctx, func(tx *gorm.DB) error {
				if err := p.store.MySQL.CreateSubmission(ctx, tx, &models.ResumeSubmission{
					SubmissionUUID: submissionUUID,
					Filename:       in.filename,
					ContentMD5:     in.md5Hex,
					RawObjectKey:   rawKey,
					Status:         constants.SubmissionStatusPending,
				}); err != nil {
					return err
				}
				if err := p.store.MySQL.SaveParseResult(ctx, tx, submissionUUID, storage.ParseResultUpdate{
					ParsedData:      parsedData,
					ParsedObjectKey: parsedKey,
					Summary:         in.summary,
					LLMProvider:     in.provider,
					LLMModel:        in.model,
				}); err != nil {
					return err
				}
				return p.store.MySQL.CreateOutboxMessage(ctx, tx, &models.OutboxMessage{
					AggregateID:      submissionUUID,
					EventType:        constants.EventTypeResumeParsed,
					Payload:          string(payload),
					TargetExchange:   p.cfg.RabbitMQ.EventsExchange,
					TargetRoutingKey: constants.RoutingKeyParsed,
				})
			})
			if err != nil {
				logger.Warn().Err(err).Str("filename", in.filename).Msg("数据库登记失败")
			}
		}
	}

	if p.store.Redis != nil {
		if err := p.store.Redis.MapMD5ToSubmission(ctx, in.md5Hex, submissionUUID); err != nil {
			logger.Warn().Err(err).Str("filename", in.filename).Msg("记录MD5映射失败")
		}
	}

	if p.store.Qdrant != nil && p.embedder != nil && in.summary != "" {
		vectors, err := p.embedder.EmbedStrings(ctx, []string{in.summary})
		if err != nil || len(vectors) == 0 {
			logger.Warn().Err(err).Str("filename", in.filename).Msg("生成候选人向量失败")
		} else {
			_, err := p.store.Qdrant.UpsertCandidateVectors(ctx, []storage.CandidatePoint{
				{
					Filename: in.filename,
					Name:     in.parsed.Name,
					Title:    in.parsed.Title,
					Summary:  in.summary,
					Skills:   in.parsed.Skills.Flatten(),
					Vector:   vectors[0],
				},
			})
			if err != nil {
				logger.Warn().Err(err).Str("filename", in.filename).Msg("写入候选人向量失败")
			}
		}
	}
}

func (p *Pipeline) writeReport(outputDir string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化流水线报告失败: %w", err)
	}
	reportPath := filepath.Join(outputDir, "pipeline_report.json")
	if err := os.WriteFile(reportPath, data, 0o644); err != nil {
		return fmt.Errorf("写入流水线报告失败 (path=%s): %w", reportPath, err)
	}
	return nil
}

// safeName 把姓名转成文件名安全的形式：小写，空格换下划线。
func safeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
