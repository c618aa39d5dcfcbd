package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zthsk/semantic-resume-screening/internal/parser"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// TestRenderMarkdownLayout 渲染结果遵循规范的方言布局
func TestRenderMarkdownLayout(t *testing.T) {
	gpa := 3.9
	resume := types.NewResume()
	resume.Name = "Jane Doe"
	resume.Title = "Engineer"
	resume.Email = "jane@example.com"
	resume.Education = []types.EducationEntry{
		{Institution: "Tech University of West", Degree: "BS", FieldOfStudy: "CS", Year: 2020, GPA: &gpa, Location: "Austin, TX"},
	}
	resume.Experience = []types.ExperienceEntry{
		{Company: "Acme", Title: "Dev", Start: "Jan 2020", End: "Present", Location: "Remote", Highlights: []string{"Shipped X"}},
	}
	resume.Skills.Set("Programming", []string{"Go", "Python"})

	markdown := RenderMarkdown(resume)
	lines := strings.Split(markdown, "\n")

	assert.Equal(t, "# Jane Doe", lines[0])
	assert.Equal(t, "Title: Engineer", lines[1])
	assert.Contains(t, markdown, "## Contact\nEmail: jane@example.com\n")
	assert.Contains(t, markdown, "- Institution: Tech University of West | Degree: BS | Field: CS | Year: 2020 | GPA: 3.9 | Location: Austin, TX")
	assert.Contains(t, markdown, "- Company: Acme | Title: Dev | Dates: Jan 2020 - Present | Location: Remote")
	assert.Contains(t, markdown, "  Highlights:\n    - Shipped X")
	assert.Contains(t, markdown, "- Programming: Go, Python")
	assert.True(t, strings.HasSuffix(markdown, "\n"), "渲染结果以换行结尾")
}

// TestRenderParseRoundTrip 解析产物经渲染再解析应得到同一条记录
func TestRenderParseRoundTrip(t *testing.T) {
	g := NewResumeGenerator(42)
	p := parser.NewResumeParser()

	for i := 0; i < 25; i++ {
		generated := g.GenerateResume()

		parsed := p.ParseMarkdown(RenderMarkdown(generated))
		assert.Equal(t, generated, parsed, "合成简历应无损通过渲染与解析")

		reparsed := p.ParseMarkdown(RenderMarkdown(parsed))
		assert.Equal(t, parsed, reparsed, "往返应稳定")
	}
}

// TestRoundTripEdgeRecords 边缘形态的记录同样往返稳定
func TestRoundTripEdgeRecords(t *testing.T) {
	p := parser.NewResumeParser()

	docs := []string{
		// 全默认记录
		"",
		// 无日期、无GPA、无要点
		"## Experience\n- Company: Acme | Location: Remote\n\n## Education\n- Institution: A | Year: 0\n",
		// 只有开始时间
		"## Experience\n- Company: Acme | Dates: 2021\n",
		// GPA为零
		"## Education\n- Institution: A | GPA: 0\n",
		// Highlights 标记后没有要点
		"## Experience\n- Company: Acme | Dates: Jan 2020 - Jun 2021\n  Highlights:\n",
	}

	for _, doc := range docs {
		parsed := p.ParseMarkdown(doc)
		reparsed := p.ParseMarkdown(RenderMarkdown(parsed))
		require.Equal(t, parsed, reparsed, "记录应往返稳定: %q", doc)
	}
}
