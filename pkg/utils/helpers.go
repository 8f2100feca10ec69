package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
)

// CalculateMD5 computes the MD5 hash of a byte slice.
func CalculateMD5(data []byte) string {
	hasher := md5.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// TextMD5 原始文本（未归一化）的MD5，作为结果缓存键的一部分。
// 格式分依赖原始换行，归一化后再取哈希会让不同排版共用同一条缓存。
func TextMD5(text string) string {
	return CalculateMD5([]byte(text))
}

// ToJSON 序列化为 datatypes.JSON；失败或为空时返回 "[]"
func ToJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("[]")
	}
	b, err := json.Marshal(v)
	if err != nil || len(b) == 0 || string(b) == "null" {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}

// SplitAndTrim 按逗号拆分并去除空项
func SplitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
