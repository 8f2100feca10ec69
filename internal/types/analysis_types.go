package types

// EntitySet 从简历文本中通过正则启发式抽取的实体集合
// 各列表按首次出现顺序去重
type EntitySet struct {
	Persons       []string `json:"persons"`
	Organizations []string `json:"organizations"`
	Emails        []string `json:"emails"`
	Phones        []string `json:"phones"`
}

// NewEntitySet 返回各列表均为非nil空切片的实体集合，保证JSON序列化为 []
func NewEntitySet() EntitySet {
	return EntitySet{
		Persons:       []string{},
		Organizations: []string{},
		Emails:        []string{},
		Phones:        []string{},
	}
}

// SkillMatch 单个技能词的命中结果
type SkillMatch struct {
	Skill      string `json:"skill"`
	Confidence int    `json:"confidence"` // 0-100，由出现次数和首次出现位置决定
	Count      int    `json:"count"`
}

// ScoreBreakdown ATS 分项得分，每项取值 [0,1]
type ScoreBreakdown struct {
	SkillMatch      float64 `json:"skill_match"`
	KeywordCoverage float64 `json:"keyword_coverage"`
	ContactScore    float64 `json:"contact_score"`
	EducationScore  float64 `json:"education_score"`
	FormattingScore float64 `json:"formatting_score"`
}

// JobRecommendation 岗位推荐结果
type JobRecommendation struct {
	Role  string `json:"role"`
	Score int    `json:"score"`
}

// KeyMetrics 附加指标
type KeyMetrics struct {
	KeywordDensity    float64 `json:"keyword_density"`
	FormattingClarity float64 `json:"formatting_clarity"`
	WordCount         int     `json:"word_count"`
}

// AnalysisResult 一次简历分析的完整响应
type AnalysisResult struct {
	AnalysisID         string              `json:"analysis_id,omitempty"`
	OverallScore       int                 `json:"overall_score"`
	ATSBreakdown       ScoreBreakdown      `json:"ats_breakdown"`
	SkillsProficiency  []SkillMatch        `json:"skills_proficiency"`
	JobRecommendations []JobRecommendation `json:"job_recommendations"`
	Entities           EntitySet           `json:"entities"`
	KeyMetrics         KeyMetrics          `json:"key_metrics"`
	TaxonomyVersion    string              `json:"taxonomy_version,omitempty"`
	Cached             bool                `json:"cached,omitempty"`
}

// SkillNames 返回命中技能名称列表
func (r *AnalysisResult) SkillNames() []string {
	names := make([]string, 0, len(r.SkillsProficiency))
	for _, s := range r.SkillsProficiency {
		names = append(names, s.Skill)
	}
	return names
}
