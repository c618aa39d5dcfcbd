package matcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// fakeEmbedder 按文本查表返回预置向量
type fakeEmbedder struct {
	vectors map[string][]float64
	calls   [][]string
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	f.calls = append(f.calls, texts)
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, fmt.Errorf("没有为文本预置向量: %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func testMatcherConfig() config.MatcherConfig {
	return config.MatcherConfig{BlendAlpha: 0.25, TitleWeight: 0.10, TopN: 10}
}

// TestNormAndTokenize 分词保留 + # . - 字符并折叠空白
func TestNormAndTokenize(t *testing.T) {
	assert.Equal(t, "go and c++", normText("  Go   AND\tC++ "))
	assert.Equal(t, []string{"go", "c++", "c#"}, tokenize("Go, C++ & C#!"))
	assert.Equal(t, []string{"node.js", "typescript"}, tokenize("  Node.js / TypeScript  "))
	assert.Empty(t, tokenize(""))
}

// TestCosine 余弦相似度与零向量保护
func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 0}, []float64{1, 0}), 1e-6)
	assert.InDelta(t, 0.0, cosine([]float64{1, 0}, []float64{0, 1}), 1e-6)
	assert.InDelta(t, 1.0, cosine([]float64{3, 4}, []float64{3, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosine([]float64{0, 0}, []float64{1, 1}), 1e-6)
}

// TestJaccardSim 交并比与空集合行为
func TestJaccardSim(t *testing.T) {
	assert.Equal(t, 0.0, jaccardSim(nil, nil))
	assert.Equal(t, 0.0, jaccardSim([]string{"go"}, nil))
	assert.InDelta(t, 1.0/3.0, jaccardSim([]string{"go", "kafka"}, []string{"go", "redis"}), 1e-9)
	assert.InDelta(t, 1.0, jaccardSim([]string{"go"}, []string{"go", "go"}), 1e-9)
}

// TestTitleAlign 分母至少为3的职位名称词重合度
func TestTitleAlign(t *testing.T) {
	assert.Equal(t, 0.0, titleAlign("", "Backend Engineer"))
	assert.Equal(t, 0.0, titleAlign("Backend Engineer", ""))
	assert.InDelta(t, 2.0/3.0, titleAlign("Backend Engineer", "Backend Engineer"), 1e-9)
	assert.InDelta(t, 0.5, titleAlign("Senior Backend Platform Engineer", "Backend Engineer"), 1e-9)
	assert.InDelta(t, 2.0/3.0, titleAlign("Go Dev", "Go Dev"), 1e-9)
}

// TestJobSkills 去停用词、去纯数字、排序去重；带符号的词保留
func TestJobSkills(t *testing.T) {
	job := types.JobDescription{
		Title:           "Senior Go Engineer",
		Company:         "Acme",
		Description:     "We are looking for 10 engineers with Go and Kafka",
		Requirements:    []string{"5+ years Go"},
		PreferredSkills: []string{"gRPC"},
	}

	got := jobSkills(job)
	want := []string{"5+", "acme", "engineer", "engineers", "go", "grpc", "kafka", "looking", "senior", "years"}
	assert.Equal(t, want, got)
}

// TestJobTextIncludesSectionLabels 向量化文本带有Requirements/Preferred标签
func TestJobTextIncludesSectionLabels(t *testing.T) {
	job := types.JobDescription{
		Title:           "Platform Engineer",
		Requirements:    []string{"kafka", "go"},
		PreferredSkills: []string{"terraform"},
	}

	text := jobText(job)
	assert.Contains(t, text, "Requirements:\nkafka\ngo")
	assert.Contains(t, text, "Preferred:\nterraform")
}

// TestCandidateTextSurrogate 无摘要时由职位、经历与技能拼出替代文本
func TestCandidateTextSurrogate(t *testing.T) {
	r := types.NewResume()
	r.Title = "Data Engineer"
	r.Experience = []types.ExperienceEntry{
		{Title: "Data Engineer", Company: "Acme"},
		{Title: "Analyst", Company: "Beta"},
	}
	r.Skills.Set("Programming", []string{"Go", "SQL"})

	got := candidateText(Candidate{Resume: r})
	assert.Equal(t, "Data Engineer. Data Engineer at Acme; Analyst at Beta. Skills: go, sql", got)
}

// TestCandidateTextPrefersSummary 摘要存在时直接使用
func TestCandidateTextPrefersSummary(t *testing.T) {
	r := types.NewResume()
	r.Title = "Dev"

	got := candidateText(Candidate{Resume: r, Summary: "A concise summary."})
	assert.Equal(t, "A concise summary.", got)
}

// TestCandidateTextLimits 经历最多三段、技能最多二十项
func TestCandidateTextLimits(t *testing.T) {
	r := types.NewResume()
	r.Title = ""
	r.Experience = []types.ExperienceEntry{
		{Title: "A", Company: "1"},
		{Title: "B", Company: "2"},
		{Title: "C", Company: "3"},
		{Title: "D", Company: "4"},
	}
	skills := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		skills = append(skills, fmt.Sprintf("skill%02d", i))
	}
	r.Skills.Set("All", skills)

	got := candidateText(Candidate{Resume: r})
	assert.Contains(t, got, "A at 1; B at 2; C at 3")
	assert.NotContains(t, got, "D at 4")
	assert.Contains(t, got, "skill19")
	assert.NotContains(t, got, "skill20")
}

// TestCandidateTextEmptyResume 全空简历没有匹配文本
func TestCandidateTextEmptyResume(t *testing.T) {
	r := types.NewResume()
	r.Title = ""
	assert.Empty(t, candidateText(Candidate{Resume: r}))
}

// TestMatchCandidatesRanking 混合打分的端到端排序
func TestMatchCandidatesRanking(t *testing.T) {
	job := types.JobDescription{
		Title:        "Platform Engineer",
		Requirements: []string{"kafka"},
	}

	alice := types.NewResume()
	alice.Name = "Alice"
	alice.Title = ""

	bob := types.NewResume()
	bob.Name = "Bob"
	bob.Title = "Platform Engineer"
	bob.Skills.Set("Core", []string{"Platform", "Engineer", "Kafka"})

	empty := types.NewResume()
	empty.Title = ""

	candidates := []Candidate{
		{Resume: alice, Summary: "golang expert", Filename: "alice.json"},
		{Resume: bob, Summary: "data platform", Filename: "bob.json"},
		{Resume: empty},
	}

	fe := &fakeEmbedder{vectors: map[string][]float64{
		jobText(job):    {1, 0},
		"golang expert": {1, 0},
		"data platform": {0, 1},
	}}
	m := NewMatcher(fe, testMatcherConfig())

	matches, err := m.MatchCandidates(context.Background(), job, candidates, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2, "没有匹配文本的候选人应被跳过")

	// Alice: 0.75*1.0; Bob: 0.25*1.0 + 0.10*(2/3)
	assert.Equal(t, "Alice", matches[0].Name)
	assert.InDelta(t, 0.75, matches[0].MatchScore, 1e-6)
	assert.Equal(t, "alice.json", matches[0].Filename)
	assert.Equal(t, "golang expert", matches[0].Summary)
	assert.Empty(t, matches[0].SkillsMatch)

	assert.Equal(t, "Bob", matches[1].Name)
	assert.InDelta(t, 0.25+0.10*2.0/3.0, matches[1].MatchScore, 1e-6)
	assert.Equal(t, []string{"engineer", "kafka", "platform"}, matches[1].SkillsMatch)

	// 第一次调用向量化职位描述，第二次批量向量化候选人文本
	require.Len(t, fe.calls, 2)
	assert.Equal(t, []string{jobText(job)}, fe.calls[0])
	assert.Equal(t, []string{"golang expert", "data platform"}, fe.calls[1])
}

// TestMatchCandidatesTopN topN截断与默认值
func TestMatchCandidatesTopN(t *testing.T) {
	job := types.JobDescription{Title: "Dev"}

	var candidates []Candidate
	vectors := map[string][]float64{jobText(job): {1, 0}}
	for i := 0; i < 5; i++ {
		r := types.NewResume()
		r.Name = fmt.Sprintf("c%d", i)
		summary := fmt.Sprintf("summary %d", i)
		vectors[summary] = []float64{float64(i) / 10, 1}
		candidates = append(candidates, Candidate{Resume: r, Summary: summary})
	}

	fe := &fakeEmbedder{vectors: vectors}
	m := NewMatcher(fe, testMatcherConfig())

	matches, err := m.MatchCandidates(context.Background(), job, candidates, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Equal(t, "c4", matches[0].Name, "相似度最高的排在最前")
}

// TestMatchCandidatesEmptyInput 空列表直接返回且不调用向量化
func TestMatchCandidatesEmptyInput(t *testing.T) {
	fe := &fakeEmbedder{vectors: map[string][]float64{}}
	m := NewMatcher(fe, testMatcherConfig())

	matches, err := m.MatchCandidates(context.Background(), types.JobDescription{Title: "Dev"}, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, fe.calls)
}

// fakeSearcher 记录检索参数并返回预置命中
type fakeSearcher struct {
	hits      []VectorHit
	gotVector []float64
	gotLimit  int
}

func (f *fakeSearcher) SearchCandidates(ctx context.Context, vector []float64, limit int) ([]VectorHit, error) {
	f.gotVector = vector
	f.gotLimit = limit
	return f.hits, nil
}

// TestMatchViaSearch 向量库检索结果按混合分数重排
func TestMatchViaSearch(t *testing.T) {
	job := types.JobDescription{
		Title:        "Platform Engineer",
		Requirements: []string{"kafka"},
	}

	fe := &fakeEmbedder{vectors: map[string][]float64{jobText(job): {1, 0}}}
	m := NewMatcher(fe, testMatcherConfig())

	searcher := &fakeSearcher{hits: []VectorHit{
		{Name: "Alice", Title: "", Summary: "s2", Cosine: 0.5},
		{Name: "Bob", Title: "Platform Engineer", Summary: "s1", Skills: []string{"Platform", "Engineer", "Kafka"}, Cosine: 0.2},
	}}

	matches, err := m.MatchViaSearch(context.Background(), job, searcher, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, []float64{1, 0}, searcher.gotVector)
	assert.Equal(t, 15, searcher.gotLimit)

	// Bob: 0.75*0.2 + 0.25*1.0 + 0.10*(2/3) > Alice: 0.75*0.5
	assert.Equal(t, "Bob", matches[0].Name)
	assert.InDelta(t, 0.15+0.25+0.10*2.0/3.0, matches[0].MatchScore, 1e-6)
	assert.Equal(t, []string{"engineer", "kafka", "platform"}, matches[0].SkillsMatch)
	assert.Equal(t, "Alice", matches[1].Name)
	assert.InDelta(t, 0.375, matches[1].MatchScore, 1e-6)
}

// TestSortedUniqueSkillsCap 技能列表排序去重并截断
func TestSortedUniqueSkillsCap(t *testing.T) {
	var skills []string
	for i := 29; i >= 0; i-- {
		skills = append(skills, fmt.Sprintf("s%02d", i))
	}
	skills = append(skills, "s00")

	got := sortedUniqueSkills(skills, 25)
	assert.Len(t, got, 25)
	assert.Equal(t, "s00", got[0])
	assert.Equal(t, "s24", got[24])
}
