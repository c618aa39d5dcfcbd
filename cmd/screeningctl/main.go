package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
)

var (
	configPath string
	verbose    bool
)

func main() {
	globals := pflag.NewFlagSet("screeningctl", pflag.ExitOnError)
	globals.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	globals.BoolVarP(&verbose, "verbose", "v", false, "输出debug级别日志")
	// 全局参数只解析到子命令为止，其余留给子命令自己的FlagSet
	globals.SetInterspersed(false)
	if err := globals.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	args := globals.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "generate":
		runGenerate(cfg, cmdArgs)
	case "parse":
		runParse(cfg, cmdArgs)
	case "pipeline":
		runPipeline(cfg, cmdArgs)
	case "match":
		runMatch(cfg, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logger.Level
	if verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{
		Level:      level,
		Format:     "pretty",
		TimeFormat: cfg.Logger.TimeFormat,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `用法: screeningctl [-c 配置文件] [-v] <命令> [参数]

命令:
  generate -n N -o DIR                    生成N份合成简历(markdown与text两种格式)
  parse    -i FILE|DIR -o DIR [选项]      解析简历并生成LLM摘要
  pipeline -n N -o DIR [-p PROVIDER]      生成、解析、摘要、落盘的完整流水线
  match    -j JOB.json -d DIR [--top N]   为职位描述匹配候选人

parse 选项:
  --pattern GLOB      目录模式下的文件通配 (默认 *.md)
  -p, --provider P    LLM提供方 (groq, ollama)
  --max-length N      摘要最大词数 (默认 200)
  --tone T            摘要语气 (professional, casual, technical)
  --focus a,b,c       摘要侧重点，逗号分隔
`)
}
