package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSkillsMapOrder 验证技能分类保持插入顺序，覆盖时保留原位置
func TestSkillsMapOrder(t *testing.T) {
	skills := NewSkillsMap()
	skills.Set("Programming", []string{"Python", "Go"})
	skills.Set("Web", []string{"React"})
	skills.Set("Data", []string{"SQL"})

	assert.Equal(t, []string{"Programming", "Web", "Data"}, skills.Categories(), "分类顺序应与插入顺序一致")

	// 覆盖已有分类不应改变其位置
	skills.Set("Web", []string{"Vue", "Svelte"})
	assert.Equal(t, []string{"Programming", "Web", "Data"}, skills.Categories(), "覆盖分类后顺序不应变化")

	items, ok := skills.Get("Web")
	require.True(t, ok)
	assert.Equal(t, []string{"Vue", "Svelte"}, items, "覆盖后应返回新条目")
	assert.Equal(t, 3, skills.Len())
}

// TestSkillsMapJSONRoundTrip 验证JSON序列化保序且可逆
func TestSkillsMapJSONRoundTrip(t *testing.T) {
	skills := NewSkillsMap()
	skills.Set("Cloud/DevOps", []string{"AWS", "Docker"})
	skills.Set("Programming", []string{"Go"})

	data, err := json.Marshal(skills)
	require.NoError(t, err)
	assert.Equal(t, `{"Cloud/DevOps":["AWS","Docker"],"Programming":["Go"]}`, string(data), "序列化应按插入顺序输出")

	var decoded SkillsMap
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"Cloud/DevOps", "Programming"}, decoded.Categories(), "反序列化应恢复原顺序")

	items, ok := decoded.Get("Cloud/DevOps")
	require.True(t, ok)
	assert.Equal(t, []string{"AWS", "Docker"}, items)
}

// TestSkillsMapJSONEdgeCases 空映射与null的处理
func TestSkillsMapJSONEdgeCases(t *testing.T) {
	empty := NewSkillsMap()
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data), "空映射应序列化为空对象")

	var fromNull SkillsMap
	require.NoError(t, json.Unmarshal([]byte("null"), &fromNull), "null 应被容忍")
	assert.Equal(t, 0, fromNull.Len())

	var bad SkillsMap
	assert.Error(t, json.Unmarshal([]byte(`["not","an","object"]`), &bad), "非对象输入应报错")
}

func TestSkillsMapFlatten(t *testing.T) {
	skills := NewSkillsMap()
	skills.Set("A", []string{"x", "y"})
	skills.Set("B", []string{"z"})
	assert.Equal(t, []string{"x", "y", "z"}, skills.Flatten())
}

// TestResumeJSONContract 验证简历JSON字段名与GPA的null语义
func TestResumeJSONContract(t *testing.T) {
	gpa := 3.8
	resume := NewResume()
	resume.Name = "Jane Doe"
	resume.Title = "Engineer"
	resume.Education = []EducationEntry{
		{Institution: "Tech University of West", Degree: "Master of Science", FieldOfStudy: "Data Science", Year: 2020, GPA: &gpa, Location: "Seattle, WA"},
		{Institution: "City College", Degree: "Bachelor of Science", Year: 2016},
	}
	resume.Experience = []ExperienceEntry{
		{Company: "TechNova", Title: "Backend Engineer", Start: "Jan 2021", End: "Present", Location: "Austin, TX", Highlights: []string{"Shipped things"}},
	}
	resume.Skills.Set("Programming", []string{"Go", "Python"})

	data, err := json.Marshal(resume)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, `"field_of_study":"Data Science"`, "字段名应为 snake 风格")
	assert.Contains(t, text, `"gpa":3.8`, "存在的GPA应输出数值")
	assert.Contains(t, text, `"gpa":null`, "缺失的GPA应输出 null 而不是省略")
	assert.Contains(t, text, `"highlights":["Shipped things"]`)

	var decoded Resume
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, resume.Name, decoded.Name)
	require.Len(t, decoded.Education, 2)
	require.NotNil(t, decoded.Education[0].GPA)
	assert.InDelta(t, 3.8, *decoded.Education[0].GPA, 1e-9)
	assert.Nil(t, decoded.Education[1].GPA, "缺失GPA反序列化后应为 nil")
}

// TestGPAZeroVsAbsent GPA为0与GPA缺失必须可区分
func TestGPAZeroVsAbsent(t *testing.T) {
	zero := 0.0
	withZero := EducationEntry{GPA: &zero}
	absent := EducationEntry{}

	zeroJSON, err := json.Marshal(withZero)
	require.NoError(t, err)
	absentJSON, err := json.Marshal(absent)
	require.NoError(t, err)

	assert.Contains(t, string(zeroJSON), `"gpa":0`)
	assert.Contains(t, string(absentJSON), `"gpa":null`)
}

func TestNewResumeDefaults(t *testing.T) {
	resume := NewResume()
	assert.Equal(t, "Unknown", resume.Name)
	assert.Equal(t, "Professional", resume.Title)
	assert.NotNil(t, resume.Education)
	assert.NotNil(t, resume.Experience)
	assert.Equal(t, 0, resume.Skills.Len())

	data, err := json.Marshal(resume)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"education":[]`, "空教育经历应为 [] 而非 null")
	assert.Contains(t, string(data), `"experience":[]`, "空工作经历应为 [] 而非 null")
	assert.Contains(t, string(data), `"skills":{}`, "空技能应为 {} 而非 null")
}

// TestSummaryRequestToPrompt 验证提示词的固定结构
func TestSummaryRequestToPrompt(t *testing.T) {
	resume := NewResume()
	resume.Name = "Alex Johnson"

	req := NewSummaryRequest(resume)
	prompt := req.ToPrompt()

	assert.True(t, strings.HasPrefix(prompt, "Please provide a 200-word summary of this candidate's resume."), "提示词开头不符")
	assert.Contains(t, prompt, "\nTone: professional\n")
	assert.Contains(t, prompt, "Resume Data:\n{")
	assert.Contains(t, prompt, `"name": "Alex Johnson"`)
	assert.True(t, strings.HasSuffix(prompt, "Summary:"), "提示词应以 Summary: 结尾")
	assert.NotContains(t, prompt, "Focus on:", "未设置关注点时不应出现 Focus on")

	req.MaxLength = 250
	req.FocusAreas = []string{"technical skills", "achievements"}
	prompt = req.ToPrompt()
	assert.Contains(t, prompt, "Please provide a 250-word summary")
	assert.Contains(t, prompt, "\nFocus on: technical skills, achievements\nTone: professional\n")
}
