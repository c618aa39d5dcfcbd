package matcher

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

//
// 文本与技能工具
//

var (
	tokenPattern = regexp.MustCompile(`[a-z0-9+#.\-]+`)
	spacePattern = regexp.MustCompile(`\s+`)

	stopwords = func() map[string]struct{} {
		words := strings.Fields("the a an and or with to in of for on at by from your our you we they is are be this that will as")
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		return set
	}()
)

// normText 小写化并把连续空白折叠为单个空格
func normText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(spacePattern.ReplaceAllString(strings.ToLower(s), " "))
}

func tokenize(s string) []string {
	return tokenPattern.FindAllString(normText(s), -1)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// cosine 余弦相似度，分母加1e-9避免零向量除零
func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}

	var normA, normB float64
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}

	return dot / ((math.Sqrt(normA) + 1e-9) * (math.Sqrt(normB) + 1e-9))
}

// jaccardSim 两个技能集合的Jaccard系数
func jaccardSim(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}

	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	inter := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union < 1 {
		union = 1
	}
	return float64(inter) / float64(union)
}

// titleAlign 职位名称的词重合度，以职位描述方的词数（至少3）为分母
func titleAlign(jdTitle, candTitle string) float64 {
	if jdTitle == "" || candTitle == "" {
		return 0
	}

	a := tokenize(jdTitle)
	b := tokenize(candTitle)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}

	inter := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			inter++
		}
	}

	den := len(setA)
	if den < 3 {
		den = 3
	}
	return float64(inter) / float64(den)
}

// jobText 组装用于向量化的职位描述全文
func jobText(job types.JobDescription) string {
	return strings.TrimSpace(strings.Join([]string{
		job.Title,
		job.Company,
		job.Description,
		"Requirements:\n" + strings.Join(job.Requirements, "\n"),
		"Preferred:\n" + strings.Join(job.PreferredSkills, "\n"),
	}, "\n"))
}

// jobSkills 从职位描述中提取技能词：分词后去掉停用词与纯数字，排序去重
func jobSkills(job types.JobDescription) []string {
	text := strings.Join([]string{
		job.Title,
		job.Company,
		job.Description,
		strings.Join(job.Requirements, "\n"),
		strings.Join(job.PreferredSkills, "\n"),
	}, "\n")

	seen := make(map[string]struct{})
	var out []string
	for _, tok := range tokenize(text) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if isAllDigits(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// normalizedSkills 展开简历技能并逐项规范化，丢弃空项
func normalizedSkills(r types.Resume) []string {
	flat := r.Skills.Flatten()
	out := make([]string, 0, len(flat))
	for _, s := range flat {
		if n := normText(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// candidateText 候选人的匹配文本。优先使用模型摘要，
// 缺失时用职位、前三段经历与前二十项技能拼出替代文本
func candidateText(c Candidate) string {
	if c.Summary != "" {
		return c.Summary
	}

	parts := []string{c.Resume.Title}

	if len(c.Resume.Experience) > 0 {
		entries := c.Resume.Experience
		if len(entries) > 3 {
			entries = entries[:3]
		}
		segs := make([]string, 0, len(entries))
		for _, e := range entries {
			segs = append(segs, fmt.Sprintf("%s at %s", e.Title, e.Company))
		}
		parts = append(parts, strings.Join(segs, "; "))
	}

	if skills := normalizedSkills(c.Resume); len(skills) > 0 {
		if len(skills) > 20 {
			skills = skills[:20]
		}
		parts = append(parts, "Skills: "+strings.Join(skills, ", "))
	}

	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.TrimSpace(strings.Join(kept, ". "))
}

// sortedUniqueSkills 排序去重后的技能列表，最多保留limit项
func sortedUniqueSkills(skills []string, limit int) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

//
// 匹配器
//

// Matcher 基于向量相似度、技能Jaccard与职位名称对齐的候选人匹配器
type Matcher struct {
	embedder    embedding.Embedder
	blendAlpha  float64
	titleWeight float64
	topN        int
}

// NewMatcher 创建匹配器。topN配置缺省为10
func NewMatcher(embedder embedding.Embedder, cfg config.MatcherConfig) *Matcher {
	topN := cfg.TopN
	if topN <= 0 {
		topN = 10
	}
	return &Matcher{
		embedder:    embedder,
		blendAlpha:  cfg.BlendAlpha,
		titleWeight: cfg.TitleWeight,
		topN:        topN,
	}
}

func (m *Matcher) blend(cos, jaccard, title float64) float64 {
	return (1.0-m.blendAlpha)*cos + m.blendAlpha*jaccard + m.titleWeight*title
}

// MatchCandidates 对候选人列表打分排序并返回前topN名。
// 没有匹配文本的候选人被跳过；topN不超过0时使用配置的默认值
func (m *Matcher) MatchCandidates(ctx context.Context, job types.JobDescription, candidates []Candidate, topN int) ([]types.CandidateMatch, error) {
	if topN <= 0 {
		topN = m.topN
	}
	if len(candidates) == 0 {
		return []types.CandidateMatch{}, nil
	}

	jdText := jobText(job)
	jdSkills := jobSkills(job)

	kept := make([]Candidate, 0, len(candidates))
	texts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		text := candidateText(c)
		if text == "" {
			continue
		}
		kept = append(kept, c)
		texts = append(texts, text)
	}
	if len(kept) == 0 {
		return []types.CandidateMatch{}, nil
	}

	jdEmbs, err := m.embedder.EmbedStrings(ctx, []string{jdText})
	if err != nil {
		return nil, fmt.Errorf("职位描述向量化失败: %w", err)
	}
	if len(jdEmbs) != 1 {
		return nil, fmt.Errorf("职位描述向量化返回了%d个向量", len(jdEmbs))
	}

	candEmbs, err := m.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("候选人文本向量化失败: %w", err)
	}
	if len(candEmbs) != len(texts) {
		return nil, fmt.Errorf("候选人向量数量不符: 期望%d, 实际%d", len(texts), len(candEmbs))
	}

	matches := make([]types.CandidateMatch, len(kept))
	for i, c := range kept {
		skills := normalizedSkills(c.Resume)
		score := m.blend(
			cosine(candEmbs[i], jdEmbs[0]),
			jaccardSim(jdSkills, skills),
			titleAlign(job.Title, c.Resume.Title),
		)
		matches[i] = types.CandidateMatch{
			Name:        c.Resume.Name,
			Filename:    c.Filename,
			Title:       c.Resume.Title,
			MatchScore:  score,
			SkillsMatch: sortedUniqueSkills(skills, 25),
			Summary:     texts[i],
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}

// VectorHit 向量库检索命中的候选人载荷
type VectorHit struct {
	Name     string
	Filename string
	Title    string
	Summary  string
	Skills   []string
	// Cosine 向量库返回的余弦相似度
	Cosine float64
}

// VectorSearcher 候选人向量检索接口，由向量存储实现
type VectorSearcher interface {
	SearchCandidates(ctx context.Context, vector []float64, limit int) ([]VectorHit, error)
}

// MatchViaSearch 通过向量库检索候选人并重排。向量相似度由检索给出，
// 技能与职位名称分量在检索结果上补算
func (m *Matcher) MatchViaSearch(ctx context.Context, job types.JobDescription, searcher VectorSearcher, topN int) ([]types.CandidateMatch, error) {
	if topN <= 0 {
		topN = m.topN
	}

	jdEmbs, err := m.embedder.EmbedStrings(ctx, []string{jobText(job)})
	if err != nil {
		return nil, fmt.Errorf("职位描述向量化失败: %w", err)
	}
	if len(jdEmbs) != 1 {
		return nil, fmt.Errorf("职位描述向量化返回了%d个向量", len(jdEmbs))
	}

	// 重排会改变顺序，检索量放大三倍
	hits, err := searcher.SearchCandidates(ctx, jdEmbs[0], topN*3)
	if err != nil {
		return nil, fmt.Errorf("候选人向量检索失败: %w", err)
	}

	jdSkills := jobSkills(job)

	matches := make([]types.CandidateMatch, len(hits))
	for i, hit := range hits {
		skills := make([]string, 0, len(hit.Skills))
		for _, s := range hit.Skills {
			if n := normText(s); n != "" {
				skills = append(skills, n)
			}
		}

		score := m.blend(
			hit.Cosine,
			jaccardSim(jdSkills, skills),
			titleAlign(job.Title, hit.Title),
		)
		matches[i] = types.CandidateMatch{
			Name:        hit.Name,
			Filename:    hit.Filename,
			Title:       hit.Title,
			MatchScore:  score,
			SkillsMatch: sortedUniqueSkills(skills, 25),
			Summary:     hit.Summary,
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}
