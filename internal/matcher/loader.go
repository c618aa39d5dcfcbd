package matcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// Candidate 参与匹配的候选人记录
type Candidate struct {
	Resume types.Resume
	// Summary 模型生成的摘要，可为空
	Summary string
	// Filename 候选人来源文件名，取自JSON里的source_pdf或filename字段
	Filename string
}

// candidateEnvelope 兼容裸简历JSON与带data键的解析结果两种格式
type candidateEnvelope struct {
	Filename  string          `json:"filename"`
	SourcePDF string          `json:"source_pdf"`
	Summary   string          `json:"summary"`
	Data      json.RawMessage `json:"data"`
}

func decodeCandidate(raw []byte) (Candidate, error) {
	var env candidateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Candidate{}, fmt.Errorf("候选人JSON格式无效: %w", err)
	}

	c := Candidate{Summary: env.Summary}

	src := env.SourcePDF
	if src == "" {
		src = env.Filename
	}
	if src != "" {
		c.Filename = filepath.Base(src)
	}

	if env.Data != nil {
		if err := json.Unmarshal(env.Data, &c.Resume); err != nil {
			return Candidate{}, fmt.Errorf("候选人data字段无效: %w", err)
		}
		return c, nil
	}

	if err := json.Unmarshal(raw, &c.Resume); err != nil {
		return Candidate{}, fmt.Errorf("候选人JSON格式无效: %w", err)
	}
	return c, nil
}

// LoadCandidates 从单个JSON文件或目录加载候选人。
// 文件可以是单条记录，也可以是带results数组的合并文件；
// 目录按文件名顺序读取*.json，跳过*.error.json与合并文件，无效文件跳过
func LoadCandidates(path string) ([]Candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("读取候选人路径失败: %w", err)
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取候选人文件失败: %w", err)
		}
		return decodeCandidateFile(data)
	}

	files, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("遍历候选人目录失败: %w", err)
	}
	sort.Strings(files)

	var out []Candidate
	for _, file := range files {
		name := filepath.Base(file)
		if strings.HasSuffix(name, ".error.json") || name == "combined.json" || name == "combined_results.json" {
			continue
		}

		data, err := os.ReadFile(file)
		if err != nil {
			logger.Warn().Str("file", name).Err(err).Msg("读取候选人文件失败，跳过")
			continue
		}

		c, err := decodeCandidate(data)
		if err != nil {
			logger.Warn().Str("file", name).Err(err).Msg("解析候选人JSON失败，跳过")
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeCandidateFile(data []byte) ([]Candidate, error) {
	// 合并文件格式: {"results": [...]}
	var combined struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &combined); err == nil && combined.Results != nil {
		out := make([]Candidate, 0, len(combined.Results))
		for i, raw := range combined.Results {
			c, err := decodeCandidate(raw)
			if err != nil {
				logger.Warn().Int("index", i).Err(err).Msg("解析合并文件中的候选人失败，跳过")
				continue
			}
			out = append(out, c)
		}
		return out, nil
	}

	c, err := decodeCandidate(data)
	if err != nil {
		return nil, err
	}
	return []Candidate{c}, nil
}
