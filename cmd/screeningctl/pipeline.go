package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/spf13/pflag"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/llm"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/pipeline"
	"github.com/zthsk/semantic-resume-screening/internal/storage"
)

func runPipeline(cfg *config.Config, args []string) {
	fs := pflag.NewFlagSet("pipeline", pflag.ExitOnError)
	count := fs.IntP("count", "n", 10, "生成的简历数量")
	outputDir := fs.StringP("output", "o", "", "输出目录")
	provider := fs.StringP("provider", "p", "", "LLM提供方 (groq, ollama)")
	_ = fs.Parse(args)

	ctx := context.Background()

	summarizer := llm.NewSummarizer(cfg)
	if *provider != "" {
		if err := summarizer.SetProvider(*provider); err != nil {
			logger.Warn().Err(err).Str("provider", *provider).Msg("指定的LLM提供方不可用，回退到自动选择")
		}
	}

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化存储失败: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var embedder embedding.Embedder
	if cfg.Embedding.Provider != "" {
		embedder, err = llm.NewEmbedder(cfg.Embedding)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化Embedder失败，跳过向量登记")
			embedder = nil
		}
	}

	report, err := pipeline.New(cfg, summarizer, store, embedder).Run(ctx, *count, *outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "流水线执行失败: %v\n", err)
		os.Exit(1)
	}

	stats := report.Statistics
	fmt.Println("流水线完成:")
	fmt.Printf("  生成: %d\n", stats.Generated)
	fmt.Printf("  解析: %d\n", stats.Parsed)
	fmt.Printf("  摘要: %d\n", stats.Summarized)
	fmt.Printf("  重复: %d\n", stats.Duplicates)
	fmt.Printf("  耗时: %.2fs\n", stats.ExecutionTimeSeconds)
	fmt.Printf("  LLM提供方: %s\n", report.LLMProvider)

	dirs := make([]string, 0, len(report.OutputDirectories))
	for name := range report.OutputDirectories {
		dirs = append(dirs, name)
	}
	sort.Strings(dirs)
	fmt.Println("输出目录:")
	for _, name := range dirs {
		fmt.Printf("  %s: %s\n", name, report.OutputDirectories[name])
	}
}
