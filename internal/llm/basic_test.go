package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// TestBasicSummaryFull 年份区间、公司与排序后前五项技能全部出现
func TestBasicSummaryFull(t *testing.T) {
	r := types.NewResume()
	r.Name = "Jordan Smith"
	r.Title = "Backend Engineer"
	r.Location = "Denver, CO"
	r.Experience = []types.ExperienceEntry{
		{Company: "CloudWorks", Title: "Backend Engineer", Start: "March 2019", End: "Present"},
		{Company: "DataCo", Title: "Software Engineer", Start: "2016", End: "June 2018"},
	}
	r.Skills.Set("Programming", []string{"Go", "Python"})
	r.Skills.Set("Data", []string{"PostgreSQL", "Kafka", "Redis", "Spark"})

	got := BasicSummary(r)
	want := "Jordan Smith is a Backend Engineer based in Denver, CO with experience spanning 2016-2019. " +
		"Recent work includes roles at CloudWorks delivering impact across multiple projects. " +
		"Core skills include Go, Kafka, PostgreSQL, Python, Redis."
	assert.Equal(t, want, got)
}

// TestBasicSummaryNoExperience 无经历时区间退化为 recent years 且职位退化为 Engineer
func TestBasicSummaryNoExperience(t *testing.T) {
	r := types.NewResume()
	r.Name = "Alex Chen"
	r.Title = ""
	r.Location = "Remote"

	got := BasicSummary(r)
	assert.Equal(t, "Alex Chen is a Engineer based in Remote with experience spanning recent years.", got)
}

// TestBasicSummaryTitleFallsBackToFirstExperience 标题为空时取第一段经历的职位
func TestBasicSummaryTitleFallsBackToFirstExperience(t *testing.T) {
	r := types.NewResume()
	r.Name = "Sam Lee"
	r.Title = ""
	r.Location = "Austin, TX"
	r.Experience = []types.ExperienceEntry{
		{Company: "Acme", Title: "Data Engineer", Start: "2020", End: "2022"},
	}

	got := BasicSummary(r)
	assert.Contains(t, got, "Sam Lee is a Data Engineer based in Austin, TX")
	assert.Contains(t, got, "spanning 2020-2022.")
	assert.Contains(t, got, "Recent work includes roles at Acme")
	assert.NotContains(t, got, "Core skills", "没有技能时不输出技能句")
}

// TestBasicSummaryPresentTokensSkipped 只有Present或空起止时间时区间为 recent years
func TestBasicSummaryPresentTokensSkipped(t *testing.T) {
	r := types.NewResume()
	r.Name = "Kim Park"
	r.Location = "Seattle, WA"
	r.Experience = []types.ExperienceEntry{
		{Company: "Northwind", Title: "SRE", Start: "Present", End: ""},
	}

	got := BasicSummary(r)
	assert.Contains(t, got, "spanning recent years.")
}

// TestBasicSummarySkillCap 技能句最多列出排序后的前五项
func TestBasicSummarySkillCap(t *testing.T) {
	r := types.NewResume()
	r.Name = "Ana Ruiz"
	r.Location = "Miami, FL"
	r.Skills.Set("Programming", []string{"Zig", "Go", "Rust", "C", "Elixir", "Ada", "Bash"})

	got := BasicSummary(r)
	assert.Contains(t, got, "Core skills include Ada, Bash, C, Elixir, Go.")
	assert.NotContains(t, got, "Zig")
	assert.NotContains(t, got, "Rust")
}

// TestBasicSummaryYearFromMixedToken 从 "March 2019" 这类文本中提取年份
func TestBasicSummaryYearFromMixedToken(t *testing.T) {
	r := types.NewResume()
	r.Name = "Lee Wong"
	r.Location = "NYC"
	r.Experience = []types.ExperienceEntry{
		{Company: "X", Title: "Dev", Start: "March 1998", End: "June 2003"},
	}

	got := BasicSummary(r)
	assert.Contains(t, got, "spanning 1998-2003.")
}
