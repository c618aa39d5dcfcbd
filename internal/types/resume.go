package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EducationEntry 教育经历条目。缺失字段回退为零值，
// GPA 例外：缺失或无法解析时保持 nil，与显式的 0 区分。
type EducationEntry struct {
	Institution  string   `json:"institution"`
	Degree       string   `json:"degree"`
	FieldOfStudy string   `json:"field_of_study"`
	Year         int      `json:"year"`
	GPA          *float64 `json:"gpa"`
	Location     string   `json:"location"`
}

// ExperienceEntry 工作经历条目，Highlights 保持文档内顺序
type ExperienceEntry struct {
	Company    string   `json:"company"`
	Title      string   `json:"title"`
	Start      string   `json:"start"` // 例如 "Jan 2021"
	End        string   `json:"end"`   // 例如 "Present" 或 "Jun 2023"
	Location   string   `json:"location"`
	Highlights []string `json:"highlights"`
}

// Resume 结构化简历记录
type Resume struct {
	Name       string            `json:"name"`
	Title      string            `json:"title"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone"`
	Location   string            `json:"location"`
	Education  []EducationEntry  `json:"education"`
	Experience []ExperienceEntry `json:"experience"`
	Skills     SkillsMap         `json:"skills"`
}

// NewResume 返回一份带默认值的空简历
func NewResume() Resume {
	return Resume{
		Name:       "Unknown",
		Title:      "Professional",
		Education:  []EducationEntry{},
		Experience: []ExperienceEntry{},
		Skills:     NewSkillsMap(),
	}
}

// ToJSON 序列化为带缩进的JSON字符串
func (r Resume) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化简历失败: %w", err)
	}
	return string(data), nil
}

// SkillsMap 技能分类映射，保持分类的文档插入顺序。
// 同名分类被覆盖时保留原有位置，序列化时按该顺序输出。
type SkillsMap struct {
	keys   []string
	values map[string][]string
}

// NewSkillsMap 返回一个空的技能映射
func NewSkillsMap() SkillsMap {
	return SkillsMap{values: make(map[string][]string)}
}

// Set 写入一个分类。分类已存在时覆盖其条目并保留位置
func (s *SkillsMap) Set(category string, items []string) {
	if s.values == nil {
		s.values = make(map[string][]string)
	}
	if _, ok := s.values[category]; !ok {
		s.keys = append(s.keys, category)
	}
	s.values[category] = items
}

// Get 读取一个分类的技能列表
func (s SkillsMap) Get(category string) ([]string, bool) {
	items, ok := s.values[category]
	return items, ok
}

// Categories 按插入顺序返回全部分类名
func (s SkillsMap) Categories() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len 返回分类数量
func (s SkillsMap) Len() int {
	return len(s.keys)
}

// Flatten 按分类顺序展开全部技能条目
func (s SkillsMap) Flatten() []string {
	var out []string
	for _, key := range s.keys {
		out = append(out, s.values[key]...)
	}
	return out
}

// MarshalJSON 按插入顺序输出JSON对象
func (s SkillsMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		itemsJSON, err := json.Marshal(s.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(itemsJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 逐个token读取以保留对象键的出现顺序
func (s *SkillsMap) UnmarshalJSON(data []byte) error {
	*s = NewSkillsMap()

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil // null 视为空映射
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("skills 字段应为JSON对象，实际为 %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("skills 对象键类型非法: %v", keyTok)
		}
		var items []string
		if err := dec.Decode(&items); err != nil {
			return fmt.Errorf("解析分类 %q 的技能列表失败: %w", key, err)
		}
		s.Set(key, items)
	}

	// 消费结尾的 '}'
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// ParsedResume 解析结果及其元数据
type ParsedResume struct {
	Filename    string    `json:"filename"`
	ParsedAt    time.Time `json:"parsed_at"`
	Data        Resume    `json:"data"`
	Summary     string    `json:"summary"`
	LLMProvider string    `json:"llm_provider"`
	LLMModel    string    `json:"llm_model"`
}

// ToJSON 序列化为带缩进的JSON字符串
func (p ParsedResume) ToJSON() (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化解析结果失败: %w", err)
	}
	return string(data), nil
}

// SummaryRequest 摘要生成请求
type SummaryRequest struct {
	ResumeData Resume   `json:"resume_data"`
	MaxLength  int      `json:"max_length"`
	FocusAreas []string `json:"focus_areas,omitempty"`
	Tone       string   `json:"tone"` // professional, casual, technical
}

// NewSummaryRequest 返回带默认参数的摘要请求
func NewSummaryRequest(data Resume) SummaryRequest {
	return SummaryRequest{
		ResumeData: data,
		MaxLength:  200,
		Tone:       "professional",
	}
}

// ToPrompt 构造发送给LLM的提示词
func (r SummaryRequest) ToPrompt() string {
	focusText := ""
	if len(r.FocusAreas) > 0 {
		focusText = "\nFocus on: " + strings.Join(r.FocusAreas, ", ")
	}

	resumeJSON, err := json.MarshalIndent(r.ResumeData, "", "  ")
	if err != nil {
		resumeJSON = []byte("{}")
	}

	return fmt.Sprintf(`Please provide a %d-word summary of this candidate's resume. Don't place any placeholders and don't provide any other text that is not part of the summary.

%s
Tone: %s

Resume Data:
%s

Summary:`, r.MaxLength, focusText, r.Tone, string(resumeJSON))
}
