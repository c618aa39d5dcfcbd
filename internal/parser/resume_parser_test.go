package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseEmptyString 空文本应产出全默认值的有效记录
func TestParseEmptyString(t *testing.T) {
	p := NewResumeParser()
	resume := p.ParseMarkdown("")

	assert.Equal(t, "Unknown", resume.Name, "缺失姓名应回退为 Unknown")
	assert.Equal(t, "Professional", resume.Title, "缺失职位应回退为 Professional")
	assert.Empty(t, resume.Email)
	assert.Empty(t, resume.Phone)
	assert.Empty(t, resume.Location)
	assert.Empty(t, resume.Education, "教育经历应为空序列")
	assert.Empty(t, resume.Experience, "工作经历应为空序列")
	assert.Equal(t, 0, resume.Skills.Len(), "技能映射应为空")
}

// TestParseMinimalResume 名字加技能的最小文档
func TestParseMinimalResume(t *testing.T) {
	p := NewResumeParser()
	resume := p.ParseMarkdown("# Jane Doe\nTitle: Engineer\n\n## Skills\n- Programming: Python, Go\n")

	assert.Equal(t, "Jane Doe", resume.Name)
	assert.Equal(t, "Engineer", resume.Title)
	assert.Empty(t, resume.Education)
	assert.Empty(t, resume.Experience)

	items, ok := resume.Skills.Get("Programming")
	require.True(t, ok, "应识别 Programming 分类")
	assert.Equal(t, []string{"Python", "Go"}, items)
}

// TestParseExperienceWithHighlights 经历头行加缩进要点
func TestParseExperienceWithHighlights(t *testing.T) {
	doc := `# Jane Doe

## Experience
- Company: Acme | Title: Dev | Dates: Jan 2020 - Present | Location: Remote
  Highlights:
    - Shipped X
    - Shipped Y
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)

	require.Len(t, resume.Experience, 1)
	exp := resume.Experience[0]
	assert.Equal(t, "Acme", exp.Company)
	assert.Equal(t, "Dev", exp.Title)
	assert.Equal(t, "Jan 2020", exp.Start)
	assert.Equal(t, "Present", exp.End)
	assert.Equal(t, "Remote", exp.Location)
	assert.Equal(t, []string{"Shipped X", "Shipped Y"}, exp.Highlights, "要点应保持文档顺序")
}

// TestLenientContactFallback 没有 Contact 章节时全文扫描键值行
func TestLenientContactFallback(t *testing.T) {
	doc := `# Jane Doe
Some intro text.
Email: a@b.com

## Skills
- Programming: Go
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)
	assert.Equal(t, "a@b.com", resume.Email, "应通过全文扫描恢复邮箱")
}

// TestContactFirstMatchWins Contact 章节内重复键首次出现生效
func TestContactFirstMatchWins(t *testing.T) {
	doc := `## Contact
Email: first@example.com
Phone: (555) 123-4567
Email: second@example.com
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)
	assert.Equal(t, "first@example.com", resume.Email, "首个 Email 行应生效")
	assert.Equal(t, "(555) 123-4567", resume.Phone)
}

// TestGPAZeroVsAbsent 在场的零分与缺失的GPA必须可区分
func TestGPAZeroVsAbsent(t *testing.T) {
	doc := `## Education
- Institution: A | Year: 2020 | GPA: 0
- Institution: B | Year: 2021
- Institution: C | Year: 2022 | GPA: not-a-number
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)

	require.Len(t, resume.Education, 3)
	require.NotNil(t, resume.Education[0].GPA, "GPA: 0 应为在场的数值")
	assert.Equal(t, 0.0, *resume.Education[0].GPA)
	assert.Nil(t, resume.Education[1].GPA, "没有GPA键时应缺失")
	assert.Nil(t, resume.Education[2].GPA, "无法解析的GPA应缺失")
}

// TestEducationFieldDefaults 字段缺失回退为零值而不是失败
func TestEducationFieldDefaults(t *testing.T) {
	doc := `## Education
- Degree: Master of Science | Year: not-a-year
- just some text without any colon
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)

	require.Len(t, resume.Education, 2)
	assert.Equal(t, "Master of Science", resume.Education[0].Degree)
	assert.Equal(t, 0, resume.Education[0].Year, "无法解析的年份应回退为0")
	assert.Empty(t, resume.Education[0].Institution)
	assert.Empty(t, resume.Education[1].Institution, "无键值的条目行产出全默认条目")
}

// TestPipeKVLastWins 同一行内重复键后者覆盖前者
func TestPipeKVLastWins(t *testing.T) {
	kv := parsePipeKV("Institution: A | Institution: B | no colon segment | Degree: BS")
	assert.Equal(t, "B", kv["institution"], "重复键应取最后一次出现")
	assert.Equal(t, "BS", kv["degree"])
	assert.NotContains(t, kv, "no colon segment", "无冒号片段应被丢弃")
}

// TestExperienceOrderPreserved 条目顺序与文档顺序一致
func TestExperienceOrderPreserved(t *testing.T) {
	doc := `## Experience
- Company: One | Dates: 2020 - 2021
- Company: Two | Dates: 2021 - 2022
  Highlights:
    - first
    - second
- Company: Three | Dates: 2022 - Present
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)

	require.Len(t, resume.Experience, 3)
	assert.Equal(t, "One", resume.Experience[0].Company)
	assert.Equal(t, "Two", resume.Experience[1].Company)
	assert.Equal(t, "Three", resume.Experience[2].Company)
	assert.Equal(t, []string{"first", "second"}, resume.Experience[1].Highlights)
	assert.Empty(t, resume.Experience[0].Highlights, "无要点的条目应有空的要点序列")
}

// TestExperienceStateMachineEdges 收集态的退出与再进入
func TestExperienceStateMachineEdges(t *testing.T) {
	doc := `## Experience
- Company: Acme | Dates: Jan 2020 - Jun 2021
  Highlights:
    - real highlight
Some stray prose line.
    - should not be collected
- Title: Dev | Location: Remote
  Highlights:
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)

	require.Len(t, resume.Experience, 2)
	assert.Equal(t, []string{"real highlight"}, resume.Experience[0].Highlights,
		"非要点的非空行应终止收集，其后的要点不再归属")

	// 第二个条目由 Title+Location 识别，日期缺失
	assert.Equal(t, "Dev", resume.Experience[1].Title)
	assert.Equal(t, "Remote", resume.Experience[1].Location)
	assert.Empty(t, resume.Experience[1].Start)
	assert.Empty(t, resume.Experience[1].End)
	assert.Empty(t, resume.Experience[1].Highlights, "Highlights 标记后没有要点时应为空序列")
}

// TestExperienceHeaderInterruptsHighlights 头行在收集态下仍触发新条目
func TestExperienceHeaderInterruptsHighlights(t *testing.T) {
	doc := `## Experience
- Company: First | Dates: 2019 - 2020
  Highlights:
    - one
- Company: Second | Dates: 2020 - 2021
  Highlights:
    - two
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)

	require.Len(t, resume.Experience, 2)
	assert.Equal(t, []string{"one"}, resume.Experience[0].Highlights)
	assert.Equal(t, []string{"two"}, resume.Experience[1].Highlights)
}

// TestDatesWithoutSeparator 没有 " - " 时整段作为开始时间
func TestDatesWithoutSeparator(t *testing.T) {
	doc := `## Experience
- Company: Acme | Dates: 2021
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)

	require.Len(t, resume.Experience, 1)
	assert.Equal(t, "2021", resume.Experience[0].Start)
	assert.Empty(t, resume.Experience[0].End)
}

// TestSkillsCategoryOverwrite 同名分类后者覆盖且保留位置
func TestSkillsCategoryOverwrite(t *testing.T) {
	doc := `## Skills
- Programming: Python
- Web: React, Vue
- Programming: Go, Rust
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)

	assert.Equal(t, []string{"Programming", "Web"}, resume.Skills.Categories(), "覆盖不应改变分类位置")
	items, _ := resume.Skills.Get("Programming")
	assert.Equal(t, []string{"Go", "Rust"}, items)
}

// TestSectionHeaderDepthAndCase 标题容忍两到三级与任意大小写
func TestSectionHeaderDepthAndCase(t *testing.T) {
	doc := "### skills\n- Data: SQL\n"
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)
	items, ok := resume.Skills.Get("Data")
	require.True(t, ok, "### 级的小写标题也应被识别")
	assert.Equal(t, []string{"SQL"}, items)

	// 四级标题不是章节标题
	resume = p.ParseMarkdown("#### Skills\n- Data: SQL\n")
	assert.Equal(t, 0, resume.Skills.Len(), "四级标题不应被识别为章节")
}

// TestDuplicateSectionHeaders 同类标题的第二次出现充当停止标记
func TestDuplicateSectionHeaders(t *testing.T) {
	doc := `## Skills
- Programming: Go

## Skills
- Data: SQL
`
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)

	assert.Equal(t, []string{"Programming"}, resume.Skills.Categories(),
		"只有第一个技能块应被捕获")
}

// TestNameOnlyFromSingleLevelHeading 名字只认一级标题
func TestNameOnlyFromSingleLevelHeading(t *testing.T) {
	doc := "## Contact\nEmail: a@b.com\n"
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)
	assert.Equal(t, "Unknown", resume.Name, "二级标题不应被误认为姓名")

	resume = p.ParseMarkdown("## Contact\n# Late Name\n")
	assert.Equal(t, "Late Name", resume.Name, "首个一级标题生效，无论出现位置")
}

// TestCRLFNormalization Windows换行的文档同样能解析
func TestCRLFNormalization(t *testing.T) {
	doc := "# Jane Doe\r\nTitle: Engineer\r\n\r\n## Skills\r\n- Programming: Go\r\n"
	p := NewResumeParser()
	resume := p.ParseMarkdown(doc)
	assert.Equal(t, "Jane Doe", resume.Name)
	items, ok := resume.Skills.Get("Programming")
	require.True(t, ok)
	assert.Equal(t, []string{"Go"}, items)
}

// TestParseNeverFails 畸形输入一律产出有效记录
func TestParseNeverFails(t *testing.T) {
	adversarial := []string{
		"just plain text with no structure",
		"## Experience\n|||:::|||\n- : | : | :\n",
		"# \n## Education\n- Year: | GPA: | Institution:\n",
		"## Skills\n- : , , ,\n-:\n",
		"####################",
		"\n\n\n\n",
		"## Contact\n## Contact\n## Contact\n",
	}

	p := NewResumeParser()
	for _, doc := range adversarial {
		resume := p.ParseMarkdown(doc)
		assert.NotEmpty(t, resume.Name, "任何输入都应有姓名默认值")
		assert.NotEmpty(t, resume.Title, "任何输入都应有职位默认值")
		assert.NotNil(t, resume.Education)
		assert.NotNil(t, resume.Experience)
	}
}

// TestParseFileErrors 源不可读是解析器唯一的错误类别
func TestParseFileErrors(t *testing.T) {
	p := NewResumeParser()

	// 文件不存在
	_, err := p.ParseFile(filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable), "缺失文件应匹配 ErrSourceUnavailable")
	assert.True(t, errors.Is(err, os.ErrNotExist), "底层的文件系统错误应保留在错误链中")

	// 非法UTF-8内容
	badFile := filepath.Join(t.TempDir(), "bad.md")
	require.NoError(t, os.WriteFile(badFile, []byte{0xff, 0xfe, 0xfd}, 0644))
	_, err = p.ParseFile(badFile)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable), "非法编码应匹配 ErrSourceUnavailable")

	// 正常文件
	goodFile := filepath.Join(t.TempDir(), "good.md")
	require.NoError(t, os.WriteFile(goodFile, []byte("# Jane Doe\n"), 0644))
	resume, err := p.ParseFile(goodFile)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", resume.Name)
}
