package scoring

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/minio/highwayhash"
	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomyYAML []byte

// fingerprintKey HighwayHash 需要 32 字节密钥，固定值保证指纹跨进程稳定
var fingerprintKey = []byte("resume-ats-go/taxonomy/hh-key-v1")

// Taxonomy 技能词表与岗位列表，作为评分引擎的注入配置
// 词表是版本化常量：任何改动都会改变评分输出
type Taxonomy struct {
	Version string   `yaml:"version"`
	Skills  []string `yaml:"skills"`
	Roles   []string `yaml:"roles"`
}

// DefaultTaxonomy 返回内置的默认词表（52个技能词，8个岗位）
func DefaultTaxonomy() *Taxonomy {
	t, err := ParseTaxonomy(defaultTaxonomyYAML)
	if err != nil {
		// 内嵌文件在编译期确定，解析失败属于构建错误
		panic(fmt.Sprintf("内置技能词表解析失败: %v", err))
	}
	return t
}

// LoadTaxonomy 从YAML文件加载词表；path为空时返回默认词表
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取技能词表文件失败: %w", err)
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy 解析YAML词表并做基本校验
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("解析技能词表失败: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate 校验词表：技能词必须非空、小写且不重复
func (t *Taxonomy) Validate() error {
	if len(t.Skills) == 0 {
		return errors.New("技能词表不能为空")
	}
	seen := make(map[string]struct{}, len(t.Skills))
	for i, s := range t.Skills {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("第 %d 个技能词为空", i)
		}
		if s != strings.ToLower(s) {
			return fmt.Errorf("技能词必须为小写: %q", s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("技能词重复: %q", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// Fingerprint 返回词表内容的 HighwayHash-64 十六进制指纹，用于缓存键
func (t *Taxonomy) Fingerprint() string {
	var b strings.Builder
	b.WriteString(t.Version)
	b.WriteByte(0)
	for _, s := range t.Skills {
		b.WriteString(s)
		b.WriteByte(0)
	}
	b.WriteByte(1)
	for _, r := range t.Roles {
		b.WriteString(r)
		b.WriteByte(0)
	}

	sum := highwayhash.Sum64([]byte(b.String()), fingerprintKey)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], sum)
	return fmt.Sprintf("%x", buf[:])
}
