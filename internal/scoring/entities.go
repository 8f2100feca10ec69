package scoring

import (
	"regexp"
	"unicode"
	"unicode/utf8"

	"resume-ats-go/internal/types"
)

// 正则启发式，不是真正的命名实体识别：
// persons 会把任意两个首字母大写的连续单词（标题、栏目名）当作人名，
// organizations 会把任意全大写缩写（如 SQL、AWS）当作机构。
// 保持与历史版本一致的模式语义，便于结果复现。
var (
	emailPattern = regexp.MustCompile(`[\p{L}\p{N}_.-]+@[\p{L}\p{N}_.-]+\.[\p{L}\p{N}_]+`)
	phonePattern = regexp.MustCompile(`\+?\p{Nd}[\p{Nd}\s-]{8,}\p{Nd}`)
	// 词边界按 Unicode 判断，见 findWholeWords
	personPattern = regexp.MustCompile(`[A-Z][a-z]+[\s\p{Z}][A-Z][a-z]+`)
	orgPattern    = regexp.MustCompile(`[A-Z][A-Z]+`)
)

// minOrgLength 机构缩写最短长度（不含）
const minOrgLength = 2

// ExtractEntities 从文本中抽取邮箱、电话、人名和机构名
func ExtractEntities(text string) types.EntitySet {
	set := types.NewEntitySet()
	if text == "" {
		return set
	}

	set.Emails = dedupe(emailPattern.FindAllString(text, -1))
	set.Phones = dedupe(phonePattern.FindAllString(text, -1))
	set.Persons = dedupe(findWholeWords(personPattern, text))

	var orgs []string
	for _, w := range findWholeWords(orgPattern, text) {
		if len(w) > minOrgLength {
			orgs = append(orgs, w)
		}
	}
	set.Organizations = dedupe(orgs)

	return set
}

// findWholeWords 返回两侧都处于 Unicode 词边界的匹配。
// RE2 的 \b 只认 ASCII，"Muñoz" 里的 ñ 会被当成边界；这里逐个候选检查前后字符。
// 两个模式首尾都是贪婪的字母类，同一起点只有最长匹配可能满足边界，
// 因此失败时跳过一个字符重新查找即可。
func findWholeWords(re *regexp.Regexp, text string) []string {
	var out []string
	for pos := 0; pos < len(text); {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !wordRuneBefore(text, start) && !wordRuneAt(text, end) {
			out = append(out, text[start:end])
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func wordRuneBefore(text string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return isWordRune(r)
}

func wordRuneAt(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return isWordRune(r)
}

// dedupe 去重并保留首次出现顺序，始终返回非nil切片
func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
