package types

// JobDescription 岗位描述
type JobDescription struct {
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Description     string   `json:"description"`
	Requirements    []string `json:"requirements"`
	PreferredSkills []string `json:"preferred_skills"`
}

// CandidateMatch 单个候选人的匹配结果
type CandidateMatch struct {
	Name        string   `json:"name"`
	Filename    string   `json:"filename"`
	Title       string   `json:"title"`
	MatchScore  float64  `json:"match_score"`
	SkillsMatch []string `json:"skills_match"`
	Summary     string   `json:"summary"`
}
