package llm

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// 降级摘要在结果元信息中使用的提供方与模型标识
const (
	FallbackProviderName = "fallback"
	FallbackModelName    = "basic"
)

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// BasicSummary 在LLM不可用或调用失败时生成确定性的降级摘要。
// 从工作经历的起止时间里提取年份得到经验区间，再拼接职位、公司与前五项技能
func BasicSummary(resume types.Resume) string {
	years := make(map[int]struct{})
	for _, exp := range resume.Experience {
		for _, token := range []string{exp.Start, exp.End} {
			trimmed := strings.TrimSpace(token)
			if trimmed == "" || trimmed == "Present" {
				continue
			}
			if m := yearPattern.FindString(token); m != "" {
				y, _ := strconv.Atoi(m)
				years[y] = struct{}{}
			}
		}
	}

	span := "recent years"
	if len(years) > 0 {
		minYear, maxYear := 0, 0
		first := true
		for y := range years {
			if first {
				minYear, maxYear = y, y
				first = false
				continue
			}
			if y < minYear {
				minYear = y
			}
			if y > maxYear {
				maxYear = y
			}
		}
		span = fmt.Sprintf("%d-%d", minYear, maxYear)
	}

	role := resume.Title
	if role == "" {
		if len(resume.Experience) > 0 {
			role = resume.Experience[0].Title
		} else {
			role = "Engineer"
		}
	}

	company := ""
	if len(resume.Experience) > 0 {
		company = resume.Experience[0].Company
	}

	topSkills := ""
	if flat := resume.Skills.Flatten(); len(flat) > 0 {
		sort.Strings(flat)
		if len(flat) > 5 {
			flat = flat[:5]
		}
		topSkills = strings.Join(flat, ", ")
	}

	lead := fmt.Sprintf("%s is a %s with experience spanning %s.", resume.Name, role, span)
	if strings.TrimSpace(resume.Location) != "" {
		lead = fmt.Sprintf("%s is a %s based in %s with experience spanning %s.", resume.Name, role, resume.Location, span)
	}

	sentences := []string{lead}
	if company != "" {
		sentences = append(sentences, fmt.Sprintf("Recent work includes roles at %s delivering impact across multiple projects.", company))
	}
	if topSkills != "" {
		sentences = append(sentences, fmt.Sprintf("Core skills include %s.", topSkills))
	}

	return strings.TrimSpace(strings.Join(sentences, " "))
}
