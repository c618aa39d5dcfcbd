package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zthsk/semantic-resume-screening/internal/generator"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

const defaultGenerateCount = 10

// ParseRequest 单份简历解析请求
type ParseRequest struct {
	Content     string   `json:"content"`
	Filename    string   `json:"filename"`
	MaxLength   int      `json:"max_length"`
	Tone        string   `json:"tone"`
	FocusAreas  []string `json:"focus_areas"`
	LLMProvider string   `json:"llm_provider"`
}

// ParseOptions 解析与摘要的可选参数，零值字段使用默认值
type ParseOptions struct {
	MaxLength   int
	Tone        string
	FocusAreas  []string
	LLMProvider string
}

// ParseResponse 解析结果信封。解析或摘要失败不是HTTP错误，
// 而是success=false加错误描述
type ParseResponse struct {
	Success        bool                `json:"success"`
	Data           *types.ParsedResume `json:"data,omitempty"`
	Error          string              `json:"error,omitempty"`
	ProcessingTime float64             `json:"processing_time"`
}

func failParse(start time.Time, err error) *ParseResponse {
	return &ParseResponse{
		Success:        false,
		Error:          err.Error(),
		ProcessingTime: time.Since(start).Seconds(),
	}
}

// ParseContent 解析正文内容并生成摘要。
// 只有缺少content字段才算参数错误；内容解析失败走success=false分支
func (h *ScreeningHandler) ParseContent(ctx context.Context, req *ParseRequest) (*ParseResponse, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("%w: 缺少content字段", ErrInvalidRequest)
	}

	filename := req.Filename
	if filename == "" {
		filename = "uploaded_resume"
	}
	opts := ParseOptions{
		MaxLength:   req.MaxLength,
		Tone:        req.Tone,
		FocusAreas:  req.FocusAreas,
		LLMProvider: req.LLMProvider,
	}
	return h.parseAndSummarize(ctx, req.Content, filename, opts), nil
}

// ParseUpload 解析上传的简历文件。PDF先过文本提取，
// 其余按UTF-8编码的markdown处理
func (h *ScreeningHandler) ParseUpload(ctx context.Context, filename string, data []byte, opts ParseOptions) *ParseResponse {
	start := time.Now()

	var content string
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		text, _, err := h.pdfExtractor.ExtractTextFromBytes(ctx, data, filename)
		if err != nil {
			logger.Warn().Err(err).Str("filename", filename).Msg("PDF文本提取失败")
			return failParse(start, fmt.Errorf("PDF文本提取失败: %w", err))
		}
		content = text
	} else {
		if !utf8.Valid(data) {
			return failParse(start, fmt.Errorf("文件内容不是合法的UTF-8编码"))
		}
		content = string(data)
	}

	return h.parseAndSummarize(ctx, content, filename, opts)
}

// parseAndSummarize 解析加摘要的公共路径
func (h *ScreeningHandler) parseAndSummarize(ctx context.Context, content, filename string, opts ParseOptions) *ParseResponse {
	start := time.Now()

	if opts.LLMProvider != "" {
		if err := h.summarizer.SetProvider(opts.LLMProvider); err != nil {
			return failParse(start, err)
		}
	}

	resume := h.resumeParser.ParseMarkdown(content)

	sreq := types.NewSummaryRequest(resume)
	if opts.MaxLength > 0 {
		sreq.MaxLength = opts.MaxLength
	}
	if opts.Tone != "" {
		sreq.Tone = opts.Tone
	}
	if len(opts.FocusAreas) > 0 {
		sreq.FocusAreas = opts.FocusAreas
	}

	summary, err := h.summarizer.Summarize(ctx, sreq)
	if err != nil {
		logger.Warn().Err(err).Str("filename", filename).Msg("摘要生成失败")
		return failParse(start, err)
	}

	return &ParseResponse{
		Success: true,
		Data: &types.ParsedResume{
			Filename:    filename,
			ParsedAt:    time.Now().UTC(),
			Data:        resume,
			Summary:     summary,
			LLMProvider: h.summarizer.CurrentProviderName(),
			LLMModel:    h.summarizer.CurrentModel(),
		},
		ProcessingTime: time.Since(start).Seconds(),
	}
}

// BatchParseRequest 目录批量解析请求
type BatchParseRequest struct {
	InputDir    string   `json:"input_dir"`
	OutputDir   string   `json:"output_dir"`
	MaxLength   int      `json:"max_length"`
	Tone        string   `json:"tone"`
	FocusAreas  []string `json:"focus_areas"`
	LLMProvider string   `json:"llm_provider"`
}

// BatchParseResponse 批量解析结果计数
type BatchParseResponse struct {
	Success          bool   `json:"success"`
	TotalFiles       int    `json:"total_files"`
	SuccessfulParses int    `json:"successful_parses"`
	OutputDirectory  string `json:"output_directory"`
	Message          string `json:"message"`
}

// combinedResults 批量解析的合并输出文件格式
type combinedResults struct {
	ProcessedAt      string               `json:"processed_at"`
	TotalFiles       int                  `json:"total_files"`
	SuccessfulParses int                  `json:"successful_parses"`
	LLMProvider      string               `json:"llm_provider"`
	LLMModel         string               `json:"llm_model"`
	Results          []types.ParsedResume `json:"results"`
}

// ParseBatch 解析输入目录下的全部markdown简历，
// 每份写独立JSON，另写一份combined_results.json。
// 单个文件失败记日志跳过，不中断整批
func (h *ScreeningHandler) ParseBatch(ctx context.Context, req *BatchParseRequest) (*BatchParseResponse, error) {
	if req.InputDir == "" || req.OutputDir == "" {
		return nil, fmt.Errorf("%w: input_dir与output_dir均为必填", ErrInvalidRequest)
	}
	if info, err := os.Stat(req.InputDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: 输入目录不存在: %s", ErrInvalidRequest, req.InputDir)
	}

	if req.LLMProvider != "" {
		if err := h.summarizer.SetProvider(req.LLMProvider); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	files, err := filepath.Glob(filepath.Join(req.InputDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("遍历输入目录失败: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: 目录中没有markdown文件: %s", ErrInvalidRequest, req.InputDir)
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	opts := ParseOptions{MaxLength: req.MaxLength, Tone: req.Tone, FocusAreas: req.FocusAreas}
	results := make([]types.ParsedResume, 0, len(files))
	for _, file := range files {
		name := filepath.Base(file)

		data, err := os.ReadFile(file)
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("读取简历文件失败，跳过")
			continue
		}

		resp := h.ParseUpload(ctx, name, data, opts)
		if !resp.Success {
			logger.Warn().Str("file", name).Str("error", resp.Error).Msg("简历处理失败，跳过")
			continue
		}
		results = append(results, *resp.Data)

		out, err := resp.Data.ToJSON()
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("序列化解析结果失败")
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		outPath := filepath.Join(req.OutputDir, stem+".json")
		if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
			logger.Warn().Err(err).Str("file", outPath).Msg("写入解析结果失败")
		}
	}

	combined := combinedResults{
		ProcessedAt:      time.Now().UTC().Format(time.RFC3339),
		TotalFiles:       len(files),
		SuccessfulParses: len(results),
		LLMProvider:      "unknown",
		LLMModel:         "unknown",
		Results:          results,
	}
	if len(results) > 0 {
		combined.LLMProvider = results[0].LLMProvider
		combined.LLMModel = results[0].LLMModel
	}
	combinedData, err := json.MarshalIndent(combined, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化合并结果失败: %w", err)
	}
	combinedPath := filepath.Join(req.OutputDir, "combined_results.json")
	if err := os.WriteFile(combinedPath, combinedData, 0o644); err != nil {
		return nil, fmt.Errorf("写入合并结果失败: %w", err)
	}

	return &BatchParseResponse{
		Success:          true,
		TotalFiles:       len(files),
		SuccessfulParses: len(results),
		OutputDirectory:  req.OutputDir,
		Message:          fmt.Sprintf("已处理 %d/%d 个文件", len(results), len(files)),
	}, nil
}

// GenerateRequest 合成简历生成请求
type GenerateRequest struct {
	Count     int    `json:"count"`
	OutputDir string `json:"output_dir"`
}

// GenerateResponse 合成简历生成结果
type GenerateResponse struct {
	Success         bool     `json:"success"`
	Count           int      `json:"count"`
	OutputDirectory string   `json:"output_directory"`
	Formats         []string `json:"formats"`
	Message         string   `json:"message"`
}

// Generate 生成count份合成简历写入输出目录，count缺省为10
func (h *ScreeningHandler) Generate(req *GenerateRequest) (*GenerateResponse, error) {
	count := req.Count
	if count == 0 {
		count = defaultGenerateCount
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: count不能为负数", ErrInvalidRequest)
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "synthetic_resumes")
	}

	gen := generator.NewResumeGenerator(h.cfg.Generator.Seed)
	resumes, err := gen.WriteResumeFiles(outputDir, count)
	if err != nil {
		return nil, fmt.Errorf("生成简历失败: %w", err)
	}

	return &GenerateResponse{
		Success:         true,
		Count:           len(resumes),
		OutputDirectory: outputDir,
		Formats:         []string{"markdown", "text"},
		Message:         fmt.Sprintf("已生成 %d 份合成简历", len(resumes)),
	}, nil
}
