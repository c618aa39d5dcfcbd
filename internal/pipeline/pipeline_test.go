package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/llm"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// newTestPipeline 构造不带任何LLM提供方与存储后端的流水线，
// 摘要环节会直接走确定性的基础摘要。
func newTestPipeline(t *testing.T, seed int64) *Pipeline {
	t.Helper()
	cfg := &config.Config{}
	cfg.Generator.Seed = seed
	cfg.Pipeline.SummarizeWait = "1ms"
	return New(cfg, llm.NewSummarizer(cfg), nil, nil)
}

func TestPipelineRun(t *testing.T) {
	p := newTestPipeline(t, 42)
	outDir := t.TempDir()

	report, err := p.Run(context.Background(), 3, outDir)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "1.0.0", report.PipelineVersion)
	assert.Equal(t, 3, report.Statistics.TotalResumes)
	assert.Equal(t, 3, report.Statistics.Generated)
	assert.Equal(t, 3, report.Statistics.Parsed)
	assert.Equal(t, 3, report.Statistics.Summarized)
	assert.Equal(t, 0, report.Statistics.Duplicates)
	assert.Equal(t, 3, report.Statistics.FilesCreated["resumes"])
	assert.Equal(t, 3, report.Statistics.FilesCreated["parsed"])
	assert.Equal(t, 3, report.Statistics.FilesCreated["summaries"])
	assert.Equal(t, "none", report.LLMProvider, "没有配置提供方时报告应如实记录")
	assert.GreaterOrEqual(t, report.Statistics.ExecutionTimeSeconds, 0.0)

	mdFiles, err := filepath.Glob(filepath.Join(outDir, "resumes", "*.md"))
	require.NoError(t, err)
	assert.Len(t, mdFiles, 3)

	parsedFiles, err := filepath.Glob(filepath.Join(outDir, "parsed", "*_parsed.json"))
	require.NoError(t, err)
	assert.Len(t, parsedFiles, 3)

	summaryFiles, err := filepath.Glob(filepath.Join(outDir, "summaries", "*_summary.txt"))
	require.NoError(t, err)
	assert.Len(t, summaryFiles, 3)

	reportData, err := os.ReadFile(filepath.Join(outDir, "pipeline_report.json"))
	require.NoError(t, err)
	var onDisk Report
	require.NoError(t, json.Unmarshal(reportData, &onDisk))
	assert.Equal(t, report.PipelineVersion, onDisk.PipelineVersion)
	assert.NotEmpty(t, onDisk.ExecutionTime)
	assert.Contains(t, onDisk.OutputDirectories, "resumes")
	assert.Contains(t, onDisk.OutputDirectories, "parsed")
	assert.Contains(t, onDisk.OutputDirectories, "summaries")
}

func TestPipelineParsedResumeShape(t *testing.T) {
	p := newTestPipeline(t, 7)
	outDir := t.TempDir()

	_, err := p.Run(context.Background(), 1, outDir)
	require.NoError(t, err)

	parsedFiles, err := filepath.Glob(filepath.Join(outDir, "parsed", "*_parsed.json"))
	require.NoError(t, err)
	require.Len(t, parsedFiles, 1)

	data, err := os.ReadFile(parsedFiles[0])
	require.NoError(t, err)

	var pr types.ParsedResume
	require.NoError(t, json.Unmarshal(data, &pr))
	assert.Equal(t, llm.FallbackProviderName, pr.LLMProvider)
	assert.Equal(t, llm.FallbackModelName, pr.LLMModel)
	assert.NotEmpty(t, pr.Summary)
	assert.NotEmpty(t, pr.Data.Name)
	assert.NotEmpty(t, pr.Data.Experience)
	assert.False(t, pr.ParsedAt.IsZero())

	base := strings.TrimSuffix(filepath.Base(parsedFiles[0]), "_parsed.json")
	assert.Equal(t, base+".md", pr.Filename, "解析结果里的文件名应指向对应的markdown文件")
	assert.Regexp(t, `^[a-z_.]+_\d{3}$`, base, "文件名应为小写姓名加三位序号")

	summaryData, err := os.ReadFile(filepath.Join(outDir, "summaries", base+"_summary.txt"))
	require.NoError(t, err)
	assert.Equal(t, pr.Summary, string(summaryData), "摘要文件内容应与解析结果一致")
}

func TestPipelineInvalidCount(t *testing.T) {
	p := newTestPipeline(t, 1)
	_, err := p.Run(context.Background(), 0, t.TempDir())
	require.Error(t, err)

	_, err = p.Run(context.Background(), -5, t.TempDir())
	require.Error(t, err)
}

func TestPipelineDeterministicNaming(t *testing.T) {
	first := newTestPipeline(t, 99)
	second := newTestPipeline(t, 99)

	dirA := t.TempDir()
	dirB := t.TempDir()

	_, err := first.Run(context.Background(), 2, dirA)
	require.NoError(t, err)
	_, err = second.Run(context.Background(), 2, dirB)
	require.NoError(t, err)

	namesA := baseNames(t, filepath.Join(dirA, "resumes"))
	namesB := baseNames(t, filepath.Join(dirB, "resumes"))
	assert.Equal(t, namesA, namesB, "相同种子应产生相同的文件名序列")
}

func baseNames(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.md"))
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	sort.Strings(names)
	return names
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "jane_smith", safeName("Jane Smith"))
	assert.Equal(t, "jo_van_der_berg", safeName(" Jo van der Berg "))
	assert.Equal(t, "x", safeName("X"))
}
