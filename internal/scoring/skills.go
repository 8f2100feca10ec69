package scoring

import (
	"sort"
	"strings"
	"unicode/utf8"

	"resume-ats-go/internal/types"
)

const (
	// DefaultEarlyPositionThreshold 技能首次出现位置（字符下标）小于该值时获得前置加分
	DefaultEarlyPositionThreshold = 300

	baseConfidence     = 40
	freqBonusPerHit    = 10
	maxFreqBonus       = 30
	earlyBonus         = 10
	maxSkillConfidence = 100
)

// SkillExtractor 基于固定词表的关键词技能抽取器
type SkillExtractor struct {
	vocabulary     []string
	earlyThreshold int
}

// NewSkillExtractor 创建技能抽取器；earlyThreshold <= 0 时使用默认值
func NewSkillExtractor(vocabulary []string, earlyThreshold int) *SkillExtractor {
	if earlyThreshold <= 0 {
		earlyThreshold = DefaultEarlyPositionThreshold
	}
	vocab := make([]string, len(vocabulary))
	copy(vocab, vocabulary)
	return &SkillExtractor{vocabulary: vocab, earlyThreshold: earlyThreshold}
}

// ExtractSkills 统计每个词表项在小写文本中的子串出现次数并计算置信度。
// 注意是子串匹配："java" 也会在 "javascript" 中命中，"r" 几乎总会命中。
func (e *SkillExtractor) ExtractSkills(text string) []types.SkillMatch {
	results := make([]types.SkillMatch, 0)
	if text == "" {
		return results
	}

	lower := strings.ToLower(text)
	for _, skill := range e.vocabulary {
		count := strings.Count(lower, skill)
		if count == 0 {
			continue
		}

		freq := count * freqBonusPerHit
		if freq > maxFreqBonus {
			freq = maxFreqBonus
		}
		bonus := 0
		if e.firstRuneIndex(lower, skill) < e.earlyThreshold {
			bonus = earlyBonus
		}
		confidence := baseConfidence + freq + bonus
		if confidence > maxSkillConfidence {
			confidence = maxSkillConfidence
		}

		results = append(results, types.SkillMatch{
			Skill:      skill,
			Confidence: confidence,
			Count:      count,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].Count > results[j].Count
	})
	return results
}

// firstRuneIndex 以字符（而非字节）计的首次出现位置
func (e *SkillExtractor) firstRuneIndex(text, term string) int {
	idx := strings.Index(text, term)
	if idx < 0 {
		return -1
	}
	return utf8.RuneCountInString(text[:idx])
}
