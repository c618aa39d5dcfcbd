package generator

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// ResumeGenerator 合成简历生成器，输出对解析器友好的markdown方言。
// 固定种子下输出可复现，便于测试与演示。
type ResumeGenerator struct {
	rnd *rand.Rand
}

// NewResumeGenerator 创建生成器，相同种子产生相同的简历序列
func NewResumeGenerator(seed int64) *ResumeGenerator {
	return &ResumeGenerator{rnd: rand.New(rand.NewSource(seed))}
}

// GenerateResume 生成一份合成简历
func (g *ResumeGenerator) GenerateResume() types.Resume {
	first := pick(g.rnd, firstNames)
	last := pick(g.rnd, lastNames)
	cs := citiesST[g.rnd.Intn(len(citiesST))]
	location := cs.City + ", " + cs.State

	resume := types.NewResume()
	resume.Name = first + " " + last
	resume.Title = pick(g.rnd, jobTitles)
	resume.Email = g.generateEmail(first, last)
	resume.Phone = g.generatePhone()
	resume.Location = location
	resume.Education = g.generateEducation(location)
	resume.Experience = g.generateExperience()
	resume.Skills = g.generateSkills()
	return resume
}

// GenerateMultiple 生成多份合成简历
func (g *ResumeGenerator) GenerateMultiple(count int) []types.Resume {
	resumes := make([]types.Resume, 0, count)
	for i := 0; i < count; i++ {
		resumes = append(resumes, g.GenerateResume())
	}
	return resumes
}

func (g *ResumeGenerator) generateEmail(first, last string) string {
	domain := pick(g.rnd, emailDomains)
	sep := pick(g.rnd, emailSeparators)
	return strings.ToLower(first) + sep + strings.ToLower(last) + "@" + domain
}

func (g *ResumeGenerator) generatePhone() string {
	a := 200 + g.rnd.Intn(800)
	b := 200 + g.rnd.Intn(800)
	c := 1000 + g.rnd.Intn(9000)
	return fmt.Sprintf("(%d) %d-%d", a, b, c)
}

func (g *ResumeGenerator) generateEducation(location string) []types.EducationEntry {
	// 偏向只有一条教育经历
	eduCount := pick(g.rnd, []int{1, 1, 2})
	gradYear := 2016 + g.rnd.Intn(8)

	entries := make([]types.EducationEntry, 0, eduCount)
	for i := 0; i < eduCount; i++ {
		inst := pick(g.rnd, institutionBases)
		if region := pick(g.rnd, institutionRegions); region != "" {
			inst = inst + " of " + region
		}
		gpa := math.Round((3.2+g.rnd.Float64()*0.8)*100) / 100

		entries = append(entries, types.EducationEntry{
			Institution:  inst,
			Degree:       pick(g.rnd, degrees),
			FieldOfStudy: pick(g.rnd, fields),
			Year:         gradYear - i,
			GPA:          &gpa,
			Location:     location,
		})
	}
	return entries
}

func (g *ResumeGenerator) generateExperience() []types.ExperienceEntry {
	expCount := 2 + g.rnd.Intn(3)

	entries := make([]types.ExperienceEntry, 0, expCount)
	for i := 0; i < expCount; i++ {
		start, end := g.generateDateRange()
		expLoc := pick(g.rnd, citiesST).City + ", " + pick(g.rnd, citiesST).State

		highlightCount := 2 + g.rnd.Intn(3)
		highlights := make([]string, 0, highlightCount)
		for j := 0; j < highlightCount; j++ {
			highlights = append(highlights, g.generateHighlight())
		}

		entries = append(entries, types.ExperienceEntry{
			Company:    pick(g.rnd, companies),
			Title:      pick(g.rnd, jobTitles),
			Start:      start,
			End:        end,
			Location:   expLoc,
			Highlights: highlights,
		})
	}
	return entries
}

func (g *ResumeGenerator) generateDateRange() (string, string) {
	startYear := 2015 + g.rnd.Intn(8)
	start := fmt.Sprintf("%s %d", pick(g.rnd, months), startYear)

	if g.rnd.Float64() < 0.3 {
		return start, "Present"
	}
	endYear := startYear + g.rnd.Intn(2025-startYear+1)
	return start, fmt.Sprintf("%s %d", pick(g.rnd, months), endYear)
}

func (g *ResumeGenerator) generateHighlight() string {
	template := pick(g.rnd, highlightTemplates)
	replacer := strings.NewReplacer(
		"{thing}", pick(g.rnd, highlightThings),
		"{tech}", pick(g.rnd, highlightTechs),
		"{metric}", pick(g.rnd, highlightMetrics),
		"{percent}", fmt.Sprintf("%d", pick(g.rnd, highlightPercents)),
		"{count}", fmt.Sprintf("%d", 3+g.rnd.Intn(6)),
		"{project}", pick(g.rnd, highlightProjects),
		"{approach}", pick(g.rnd, highlightApproaches),
		"{component}", pick(g.rnd, highlightComponents),
		"{system}", pick(g.rnd, highlightSystems),
		"{cloud}", pick(g.rnd, highlightClouds),
	)
	return replacer.Replace(template)
}

func (g *ResumeGenerator) generateSkills() types.SkillsMap {
	skills := types.NewSkillsMap()
	for _, group := range skillGroups {
		n := 3 + g.rnd.Intn(min(5, len(group.Items))-3+1)
		skills.Set(group.Name, sample(g.rnd, group.Items, n))
	}
	return skills
}

// WriteResumeFiles 生成count份简历并写入输出目录的
// markdown/ 与 text/ 子目录，文件名形如 resume_01.md。
func (g *ResumeGenerator) WriteResumeFiles(outputDir string, count int) ([]types.Resume, error) {
	mdDir := filepath.Join(outputDir, "markdown")
	txtDir := filepath.Join(outputDir, "text")
	for _, dir := range []string{mdDir, txtDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建输出目录 %s 失败: %w", dir, err)
		}
	}

	resumes := g.GenerateMultiple(count)
	for i, resume := range resumes {
		stem := fmt.Sprintf("resume_%02d", i+1)
		markdown := RenderMarkdown(resume)

		mdPath := filepath.Join(mdDir, stem+".md")
		if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
			return nil, fmt.Errorf("写入 %s 失败: %w", mdPath, err)
		}
		txtPath := filepath.Join(txtDir, stem+".txt")
		if err := os.WriteFile(txtPath, []byte(RenderText(resume)), 0o644); err != nil {
			return nil, fmt.Errorf("写入 %s 失败: %w", txtPath, err)
		}
	}

	logger.Info().Int("count", count).Str("output_dir", outputDir).Msg("合成简历已生成")
	return resumes, nil
}

// pick 从切片中等概率取一个元素
func pick[T any](rnd *rand.Rand, items []T) T {
	return items[rnd.Intn(len(items))]
}

// sample 无放回地抽取n个元素
func sample[T any](rnd *rand.Rand, items []T, n int) []T {
	idx := rnd.Perm(len(items))
	out := make([]T, 0, n)
	for _, i := range idx[:n] {
		out = append(out, items[i])
	}
	return out
}
