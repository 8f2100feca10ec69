package scoring

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"resume-ats-go/internal/types"
)

// 总分权重
const (
	weightSkillMatch      = 0.50
	weightKeywordCoverage = 0.20
	weightContact         = 0.10
	weightEducation       = 0.10
	weightFormatting      = 0.10
)

const (
	// coverageTarget 命中多少个不同技能视为关键词全覆盖
	coverageTarget = 10
	// missingConfidence 缺失置信度时的默认值
	missingConfidence = 0.6

	shortLineMaxWords = 3
	nonASCIIBudget    = 50.0
)

// 学历关键词，按 博士 > 硕士 > 学士 > 文凭/副学士/证书 的顺序检查，首个命中的层级生效
var (
	topDegreeTiers = [][]string{
		{"phd", "ph.d", "ph.d.", "doctorate", "doctoral", "d.phil"},
		{"master", "masters", "master's", "msc", "m.sc", "m.s.", "mba", "m.tech", "mtech", "m.eng", "meng"},
		{"bachelor", "bachelors", "bachelor's", "bsc", "b.sc", "b.s.", "b.tech", "btech", "b.e.", "b.eng", "beng", "bba", "bca"},
	}
	diplomaTier = []string{"diploma", "associate", "associate's", "certificate", "certification"}

	topDegreePatterns = compileTiers(topDegreeTiers)
	diplomaPattern    = wholeWordPattern(diplomaTier)
)

// ComputeScore 计算 ATS 总分及五项分项得分。
// text 应为未归一化的原始文本：短行比例依赖换行信息。
func ComputeScore(skills []types.SkillMatch, text string, entities types.EntitySet) (int, types.ScoreBreakdown) {
	if strings.TrimSpace(text) == "" {
		return 0, types.ScoreBreakdown{}
	}

	breakdown := types.ScoreBreakdown{
		SkillMatch:      clamp01(skillMatchScore(skills)),
		KeywordCoverage: clamp01(keywordCoverageScore(skills)),
		ContactScore:    clamp01(contactScore(entities)),
		EducationScore:  clamp01(educationScore(text)),
		FormattingScore: clamp01(formattingScore(text)),
	}

	fraction := weightSkillMatch*breakdown.SkillMatch +
		weightKeywordCoverage*breakdown.KeywordCoverage +
		weightContact*breakdown.ContactScore +
		weightEducation*breakdown.EducationScore +
		weightFormatting*breakdown.FormattingScore

	overall := int(math.Round(fraction * 100))
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}
	return overall, breakdown
}

func skillMatchScore(skills []types.SkillMatch) float64 {
	if len(skills) == 0 {
		return 0
	}
	var sum float64
	for _, s := range skills {
		if s.Confidence <= 0 {
			sum += missingConfidence
			continue
		}
		sum += float64(s.Confidence) / 100
	}
	return sum / float64(len(skills))
}

func keywordCoverageScore(skills []types.SkillMatch) float64 {
	distinct := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		distinct[s.Skill] = struct{}{}
	}
	return math.Min(1.0, float64(len(distinct))/coverageTarget)
}

func contactScore(entities types.EntitySet) float64 {
	hasEmail := len(entities.Emails) > 0
	hasPhone := len(entities.Phones) > 0
	switch {
	case hasEmail && hasPhone:
		return 1.0
	case hasEmail || hasPhone:
		return 0.5
	default:
		return 0
	}
}

func educationScore(text string) float64 {
	for _, p := range topDegreePatterns {
		if p.MatchString(text) {
			return 1.0
		}
	}
	if diplomaPattern.MatchString(text) {
		return 0.6
	}
	return 0
}

// formattingScore 0.6*篇幅 + 0.25*短行惩罚 + 0.15*非ASCII惩罚
func formattingScore(text string) float64 {
	words := len(strings.Fields(text))
	var length float64
	switch {
	case words >= 300:
		length = 1.0
	case words >= 150:
		length = 0.6
	default:
		length = 0.3
	}

	nonEmpty, short := 0, 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		nonEmpty++
		if len(strings.Fields(line)) <= shortLineMaxWords {
			short++
		}
	}
	shortLine := 1.0
	if nonEmpty > 0 {
		shortLine = math.Max(0, 1-float64(short)/float64(nonEmpty)*1.5)
	}

	nonASCII := 0
	for _, r := range text {
		if r > unicode.MaxASCII {
			nonASCII++
		}
	}
	nonASCIIScore := math.Max(0, 1-float64(nonASCII)/nonASCIIBudget)

	return clamp01(0.6*length + 0.25*shortLine + 0.15*nonASCIIScore)
}

func compileTiers(tiers [][]string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, wholeWordPattern(t))
	}
	return out
}

// wholeWordPattern 构造大小写不敏感的整词匹配；关键词可能含点号或撇号，因此不用 \b
func wholeWordPattern(keywords []string) *regexp.Regexp {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}_])`)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
