package parser

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zthsk/semantic-resume-screening/internal/types"
)

//
// 简历解析器
//
// 输入是人写的半结构化markdown方言：章节可能缺失、标题层级不一、
// 要点缩进随意、字段用管道符随手分隔。解析策略是整体容错，
// 任何字段缺失或畸形都回退为默认值，只有源不可读才返回错误。
//

// experienceState 工作经历状态机的状态
type experienceState int

const (
	// awaitingItem 等待下一个经历条目行
	awaitingItem experienceState = iota
	// collectingHighlights 正在收集当前条目的高亮要点
	collectingHighlights
)

// ResumeParser 简历解析器，持有编译好的行匹配模式。
// 无共享可变状态，可被多goroutine并发使用。
type ResumeParser struct {
	// 章节标题（容忍 ## 或 ###，大小写不敏感）
	hContact    *regexp.Regexp
	hEducation  *regexp.Regexp
	hExperience *regexp.Regexp
	hSkills     *regexp.Regexp

	// 顶部信息
	rxName  *regexp.Regexp // 例如 "# Emerson Wilson"
	rxTitle *regexp.Regexp // 例如 "Title: Backend Engineer"

	// Contact 章节内的键值行
	rxKV *regexp.Regexp // 例如 "Email: foo@bar.com"

	// 条目行与高亮要点
	rxItem             *regexp.Regexp // "- " 开头的条目行
	rxHighlightsHeader *regexp.Regexp
	rxBullet           *regexp.Regexp // 缩进的 "- " 要点

	// 技能行: "- Group: A, B, C"
	rxSkillLine *regexp.Regexp
}

// NewResumeParser 创建简历解析器。模式固定且编译廉价，
// 按调用临时创建或显式共享一个实例均可。
func NewResumeParser() *ResumeParser {
	return &ResumeParser{
		hContact:    regexp.MustCompile(`(?i)^#{2,3}\s*Contact\s*$`),
		hEducation:  regexp.MustCompile(`(?i)^#{2,3}\s*Education\s*$`),
		hExperience: regexp.MustCompile(`(?i)^#{2,3}\s*Experience\s*$`),
		hSkills:     regexp.MustCompile(`(?i)^#{2,3}\s*Skills\s*$`),

		// 名字只认单个 # 的一级标题，区别于二三级的章节标题
		rxName:  regexp.MustCompile(`^#\s*([^#].*)$`),
		rxTitle: regexp.MustCompile(`(?i)^Title:\s*(.+)$`),

		rxKV: regexp.MustCompile(`^(\w+):\s*(.+)$`),

		rxItem:             regexp.MustCompile(`^-\s*(.+)$`),
		rxHighlightsHeader: regexp.MustCompile(`(?i)^\s*Highlights:\s*$`),
		rxBullet:           regexp.MustCompile(`^\s*-\s+(.*\S)\s*$`),

		rxSkillLine: regexp.MustCompile(`^-\s*([^:]+):\s*(.+)$`),
	}
}

// ParseFile 读取并解析一个简历文件。
// 文件缺失或内容不是合法UTF-8时返回可用 errors.Is 匹配
// ErrSourceUnavailable 的错误，解析本身不会失败。
func (p *ResumeParser) ParseFile(filePath string) (types.Resume, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return types.Resume{}, NewSourceError(filePath, err)
	}
	if !utf8.Valid(data) {
		return types.Resume{}, NewSourceError(filePath, errInvalidEncoding)
	}
	return p.ParseMarkdown(string(data)), nil
}

var errInvalidEncoding = &encodingError{}

type encodingError struct{}

func (*encodingError) Error() string { return "内容不是合法的UTF-8编码" }

// ParseMarkdown 解析简历文本。对任何输入都返回一个有效的简历记录，
// 空文本产出全默认值的记录。
func (p *ResumeParser) ParseMarkdown(content string) types.Resume {
	lines := splitLines(content)

	resume := types.NewResume()
	if name := p.extractName(lines); name != "" {
		resume.Name = name
	}
	if title := p.extractTitle(lines); title != "" {
		resume.Title = title
	}
	resume.Email, resume.Phone, resume.Location = p.extractContact(lines)
	resume.Education = p.extractEducation(lines)
	resume.Experience = p.extractExperience(lines)
	resume.Skills = p.extractSkills(lines)
	return resume
}

// splitLines 统一换行符后按行切分
func splitLines(content string) []string {
	text := strings.ReplaceAll(content, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

//
// 章节边界
//

// sectionBounds 返回目标章节正文的半开行区间 [start, end)。
// start 是标题行的下一行，end 是此后第一个任意章节标题所在行，
// 没有后续标题时为文档末尾。章节缺失返回 ok=false，这不是错误。
// 同类标题出现第二次时会被当作停止标记折叠进第一段正文，
// 此行为刻意保留，文档假定每类章节至多出现一次。
func (p *ResumeParser) sectionBounds(lines []string, header *regexp.Regexp) (start, end int, ok bool) {
	start = -1
	for i, line := range lines {
		if header.MatchString(strings.TrimSpace(line)) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return 0, 0, false
	}

	for j := start; j < len(lines); j++ {
		s := strings.TrimSpace(lines[j])
		if p.hContact.MatchString(s) || p.hEducation.MatchString(s) ||
			p.hExperience.MatchString(s) || p.hSkills.MatchString(s) {
			return start, j, true
		}
	}
	return start, len(lines), true
}

//
// 顶部信息
//

func (p *ResumeParser) extractName(lines []string) string {
	for _, line := range lines {
		if m := p.rxName.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func (p *ResumeParser) extractTitle(lines []string) string {
	for _, line := range lines {
		if m := p.rxTitle.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

//
// Contact 章节
//

// extractContact 从 Contact 章节提取邮箱、电话、地点，每个键首次匹配生效。
// 整个文档没有 Contact 标题时退化为全文扫描同样形状的键值行。
func (p *ResumeParser) extractContact(lines []string) (email, phone, location string) {
	start, end, ok := p.sectionBounds(lines, p.hContact)
	if !ok {
		start, end = 0, len(lines)
	}

	for i := start; i < end; i++ {
		m := p.rxKV.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m == nil {
			continue
		}
		key, value := strings.ToLower(m[1]), strings.TrimSpace(m[2])
		switch key {
		case "email":
			if email == "" {
				email = value
			}
		case "phone":
			if phone == "" {
				phone = value
			}
		case "location":
			if location == "" {
				location = value
			}
		}
	}
	return email, phone, location
}

//
// 管道分隔键值行
//

// parsePipeKV 解析 "Key: Val | Key2: Val2 | ..." 形状的行，
// 键统一转小写。重复键后者覆盖前者，无冒号的片段直接丢弃。
func parsePipeKV(text string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(text, "|") {
		part = strings.TrimSpace(part)
		idx := strings.Index(part, ":")
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:idx]))
		out[key] = strings.TrimSpace(part[idx+1:])
	}
	return out
}

//
// Education 章节
//

func (p *ResumeParser) extractEducation(lines []string) []types.EducationEntry {
	result := []types.EducationEntry{}
	start, end, ok := p.sectionBounds(lines, p.hEducation)
	if !ok {
		return result
	}

	for i := start; i < end; i++ {
		s := strings.TrimRight(lines[i], " \t")
		m := p.rxItem.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		kv := parsePipeKV(strings.TrimSpace(m[1]))

		// 年份解析失败回退为0，GPA解析失败保持缺省。
		// "GPA: 0" 是在场的零分，与没有GPA行必须可区分。
		entry := types.EducationEntry{
			Institution:  kv["institution"],
			Degree:       kv["degree"],
			FieldOfStudy: kv["field"],
			Year:         toInt(kv["year"]),
			GPA:          toFloat(kv["gpa"]),
			Location:     kv["location"],
		}
		result = append(result, entry)
	}
	return result
}

//
// Experience 章节状态机
//

// extractExperience 在经历章节内逐行运行一个两状态机。
// 条目头行立即冲刷上一个条目并开启新条目，Highlights: 标记行
// 切换到收集态，收集态下缩进要点逐条追加，非要点的非空行退回
// 等待态。头行识别优先级最高，结束高亮收集的行若本身是新头行，
// 仍然在同一遍处理中触发新条目。章节结束时冲刷未完成的条目。
func (p *ResumeParser) extractExperience(lines []string) []types.ExperienceEntry {
	result := []types.ExperienceEntry{}
	start, end, ok := p.sectionBounds(lines, p.hExperience)
	if !ok {
		return result
	}

	state := awaitingItem
	var current *types.ExperienceEntry

	flush := func() {
		if current != nil {
			result = append(result, *current)
			current = nil
		}
	}

	for i := start; i < end; i++ {
		raw := strings.TrimRight(lines[i], " \t")
		s := strings.TrimSpace(raw)

		// 新的经历条目头行：同时带有公司/职位与日期/地点标记的条目行
		if m := p.rxItem.FindStringSubmatch(s); m != nil &&
			(strings.Contains(s, "Company:") || strings.Contains(s, "Title:")) &&
			(strings.Contains(s, "Dates:") || strings.Contains(s, "Location:")) {
			flush()
			kv := parsePipeKV(strings.TrimSpace(m[1]))

			entry := types.ExperienceEntry{
				Company:    kv["company"],
				Title:      kv["title"],
				Location:   kv["location"],
				Highlights: []string{},
			}
			// 日期按首个 " - " 切分，没有分隔符时整段作为开始时间
			if dates := kv["dates"]; dates != "" {
				if idx := strings.Index(dates, " - "); idx >= 0 {
					entry.Start = strings.TrimSpace(dates[:idx])
					entry.End = strings.TrimSpace(dates[idx+3:])
				} else {
					entry.Start = dates
				}
			}

			current = &entry
			state = awaitingItem
			continue
		}

		// Highlights 标记行
		if p.rxHighlightsHeader.MatchString(s) {
			state = collectingHighlights
			continue
		}

		// 收集高亮要点
		if state == collectingHighlights && current != nil {
			if m := p.rxBullet.FindStringSubmatch(raw); m != nil {
				current.Highlights = append(current.Highlights, strings.TrimSpace(m[1]))
			} else if s != "" && !strings.HasPrefix(s, "-") {
				state = awaitingItem
			}
		}
	}

	flush()
	return result
}

//
// Skills 章节
//

// extractSkills 提取技能分类，分类保持文档顺序，
// 同名分类后者覆盖前者且保留原位置。
func (p *ResumeParser) extractSkills(lines []string) types.SkillsMap {
	skills := types.NewSkillsMap()
	start, end, ok := p.sectionBounds(lines, p.hSkills)
	if !ok {
		return skills
	}

	for i := start; i < end; i++ {
		s := strings.TrimSpace(lines[i])
		if s == "" {
			continue
		}
		m := p.rxSkillLine.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		category := strings.TrimSpace(m[1])
		items := []string{}
		for _, item := range strings.Split(m[2], ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		skills.Set(category, items)
	}
	return skills
}

//
// 数值辅助
//

func toInt(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func toFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
