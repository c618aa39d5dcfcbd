package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/llm"
	"github.com/zthsk/semantic-resume-screening/internal/matcher"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

const maxSkillsShown = 6

func runMatch(cfg *config.Config, args []string) {
	fs := pflag.NewFlagSet("match", pflag.ExitOnError)
	jobPath := fs.StringP("job", "j", "", "职位描述JSON文件")
	resumesDir := fs.StringP("resumes-dir", "d", "", "解析后简历JSON目录")
	topN := fs.Int("top", 0, "返回的候选人数量")
	jsonOut := fs.String("json", "", "把完整结果写入JSON文件")
	_ = fs.Parse(args)

	if *jobPath == "" || *resumesDir == "" {
		fmt.Fprintln(os.Stderr, "必须提供 -j/--job 与 -d/--resumes-dir")
		fmt.Fprint(os.Stderr, fs.FlagUsages())
		os.Exit(1)
	}

	data, err := os.ReadFile(*jobPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取职位描述失败: %v\n", err)
		os.Exit(1)
	}
	var job types.JobDescription
	if err := json.Unmarshal(data, &job); err != nil {
		fmt.Fprintf(os.Stderr, "职位描述JSON无效: %v\n", err)
		os.Exit(1)
	}

	embedder, err := llm.NewEmbedder(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化Embedder失败: %v\n", err)
		os.Exit(1)
	}

	candidates, err := matcher.LoadCandidates(*resumesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载候选人失败: %v\n", err)
		os.Exit(1)
	}
	if len(candidates) == 0 {
		fmt.Println("没有找到候选人")
		return
	}

	matches, err := matcher.NewMatcher(embedder, cfg.Matcher).MatchCandidates(context.Background(), job, candidates, *topN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "匹配失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("职位: %s @ %s\n", job.Title, job.Company)
	fmt.Printf("候选人: %d，返回前 %d 名\n\n", len(candidates), len(matches))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "排名\t姓名\t职位\t分数\t匹配技能")
	for i, m := range matches {
		skills := m.SkillsMatch
		suffix := ""
		if len(skills) > maxSkillsShown {
			skills = skills[:maxSkillsShown]
			suffix = ", ..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.3f\t%s%s\n", i+1, m.Name, m.Title, m.MatchScore, strings.Join(skills, ", "), suffix)
	}
	w.Flush()

	if *jsonOut != "" {
		out, err := json.MarshalIndent(matches, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "序列化匹配结果失败: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*jsonOut, out, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "写入匹配结果失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("结果已写入: %s\n", *jsonOut)
	}
}
