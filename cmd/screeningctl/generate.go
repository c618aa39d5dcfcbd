package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/generator"
)

func runGenerate(cfg *config.Config, args []string) {
	fs := pflag.NewFlagSet("generate", pflag.ExitOnError)
	count := fs.IntP("count", "n", 10, "生成数量")
	outputDir := fs.StringP("output", "o", "generated_resumes", "输出目录")
	_ = fs.Parse(args)

	if *count <= 0 {
		fmt.Fprintln(os.Stderr, "生成数量必须为正数")
		os.Exit(1)
	}

	gen := generator.NewResumeGenerator(cfg.Generator.Seed)
	resumes, err := gen.WriteResumeFiles(*outputDir, *count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "生成简历失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("已生成 %d 份合成简历: %s\n", len(resumes), *outputDir)
}
