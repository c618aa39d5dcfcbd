package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/llm"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/parser"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// combinedResults 目录模式下合并输出文件的格式
type combinedResults struct {
	ProcessedAt      string               `json:"processed_at"`
	TotalFiles       int                  `json:"total_files"`
	SuccessfulParses int                  `json:"successful_parses"`
	LLMProvider      string               `json:"llm_provider"`
	LLMModel         string               `json:"llm_model"`
	Results          []types.ParsedResume `json:"results"`
}

type parseJob struct {
	parser     *parser.ResumeParser
	summarizer *llm.Summarizer
	maxLength  int
	tone       string
	focus      []string
}

// processFile 解析单个文件并生成摘要。LLM失败时降级为基础摘要，
// 文件读不出来才算错误
func (j *parseJob) processFile(ctx context.Context, path string) (types.ParsedResume, error) {
	resume, err := j.parser.ParseFile(path)
	if err != nil {
		return types.ParsedResume{}, err
	}

	sreq := types.NewSummaryRequest(resume)
	if j.maxLength > 0 {
		sreq.MaxLength = j.maxLength
	}
	if j.tone != "" {
		sreq.Tone = j.tone
	}
	if len(j.focus) > 0 {
		sreq.FocusAreas = j.focus
	}

	summary, err := j.summarizer.Summarize(ctx, sreq)
	provider := j.summarizer.CurrentProviderName()
	model := j.summarizer.CurrentModel()
	if err != nil {
		logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("LLM摘要失败，降级为基础摘要")
		summary = llm.BasicSummary(resume)
		provider = llm.FallbackProviderName
		model = llm.FallbackModelName
	}

	return types.ParsedResume{
		Filename:    filepath.Base(path),
		ParsedAt:    time.Now().UTC(),
		Data:        resume,
		Summary:     summary,
		LLMProvider: provider,
		LLMModel:    model,
	}, nil
}

func runParse(cfg *config.Config, args []string) {
	fs := pflag.NewFlagSet("parse", pflag.ExitOnError)
	input := fs.StringP("input", "i", "", "输入文件或目录")
	output := fs.StringP("output", "o", "", "输出目录")
	provider := fs.StringP("provider", "p", "", "LLM提供方 (groq, ollama)")
	pattern := fs.String("pattern", "*.md", "目录模式下的文件通配")
	maxLength := fs.Int("max-length", 200, "摘要最大词数")
	tone := fs.String("tone", "professional", "摘要语气")
	focus := fs.StringSlice("focus", nil, "摘要侧重点，逗号分隔")
	_ = fs.Parse(args)

	if *input == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "必须提供 -i/--input 与 -o/--output")
		fmt.Fprint(os.Stderr, fs.FlagUsages())
		os.Exit(1)
	}

	info, err := os.Stat(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "输入路径不可访问: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(*output, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "创建输出目录失败: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	summarizer := llm.NewSummarizer(cfg)
	if *provider != "" {
		if err := summarizer.SetProvider(*provider); err != nil {
			logger.Warn().Err(err).Str("provider", *provider).Msg("指定的LLM提供方不可用，回退到自动选择")
		}
	}

	fmt.Println("LLM提供方:")
	for _, name := range summarizer.ProviderNames() {
		p, _ := summarizer.Provider(name)
		mark := "✗"
		if p.IsAvailable() {
			mark = "✓"
		}
		fmt.Printf("  %s %s\n", mark, name)
	}

	job := &parseJob{
		parser:     parser.NewResumeParser(),
		summarizer: summarizer,
		maxLength:  *maxLength,
		tone:       *tone,
		focus:      *focus,
	}

	if !info.IsDir() {
		pr, err := job.processFile(ctx, *input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "处理文件失败: %v\n", err)
			os.Exit(1)
		}
		outPath, err := writeParsedJSON(*output, pr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "写入解析结果失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("已处理文件: %s\n", outPath)
		return
	}

	files, err := filepath.Glob(filepath.Join(*input, *pattern))
	if err != nil {
		fmt.Fprintf(os.Stderr, "遍历输入目录失败: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("目录中没有匹配 %s 的文件: %s\n", *pattern, *input)
		return
	}

	results := make([]types.ParsedResume, 0, len(files))
	for _, file := range files {
		pr, err := job.processFile(ctx, file)
		if err != nil {
			logger.Warn().Err(err).Str("file", filepath.Base(file)).Msg("处理简历失败，跳过")
			continue
		}
		if _, err := writeParsedJSON(*output, pr); err != nil {
			logger.Warn().Err(err).Str("file", pr.Filename).Msg("写入解析结果失败")
		}
		results = append(results, pr)
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
		fmt.Fprintf(os.Stderr, "序列化合并结果失败: %v\n", err)
		os.Exit(1)
	}
	combinedPath := filepath.Join(*output, "combined_results.json")
	if err := os.WriteFile(combinedPath, combinedData, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "写入合并结果失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("已处理 %d/%d 个文件，结果目录: %s\n", len(results), len(files), *output)
}

func writeParsedJSON(outputDir string, pr types.ParsedResume) (string, error) {
	out, err := pr.ToJSON()
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(pr.Filename, filepath.Ext(pr.Filename))
	outPath := filepath.Join(outputDir, stem+".json")
	if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
		return "", err
	}
	return outPath, nil
}
