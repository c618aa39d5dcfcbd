package generator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// RenderMarkdown 把简历记录渲染回规范的markdown方言。
// 渲染结果重新解析后得到同一条记录。
func RenderMarkdown(resume types.Resume) string {
	lines := []string{
		"# " + resume.Name,
		"Title: " + resume.Title,
		"",
		"## Contact",
		"Email: " + resume.Email,
		"Phone: " + resume.Phone,
		"Location: " + resume.Location,
		"",
		"## Education",
	}

	for _, edu := range resume.Education {
		line := fmt.Sprintf("- Institution: %s | Degree: %s | Field: %s | Year: %d",
			edu.Institution, edu.Degree, edu.FieldOfStudy, edu.Year)
		// 缺省的GPA整段省略，与"GPA: 0"的在场零分保持可区分
		if edu.GPA != nil {
			line += " | GPA: " + strconv.FormatFloat(*edu.GPA, 'g', -1, 64)
		}
		line += " | Location: " + edu.Location
		lines = append(lines, line)
	}

	lines = append(lines, "", "## Experience")
	for _, exp := range resume.Experience {
		lines = append(lines,
			"- Company: "+exp.Company+" | Title: "+exp.Title+formatDates(exp.Start, exp.End)+" | Location: "+exp.Location,
			"  Highlights:")
		for _, highlight := range exp.Highlights {
			lines = append(lines, "    - "+highlight)
		}
	}

	lines = append(lines, "", "## Skills")
	for _, category := range resume.Skills.Categories() {
		items, _ := resume.Skills.Get(category)
		lines = append(lines, "- "+category+": "+strings.Join(items, ", "))
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// RenderText 纯文本格式与markdown格式一致
func RenderText(resume types.Resume) string {
	return RenderMarkdown(resume)
}

// formatDates 渲染日期片段。结束时间为空时省略分隔符，
// 两端都为空时整个省略片段，保证重新解析得到相同的起止值。
func formatDates(start, end string) string {
	switch {
	case start == "" && end == "":
		return ""
	case end == "":
		return " | Dates: " + start
	default:
		return " | Dates: " + start + " - " + end
	}
}

