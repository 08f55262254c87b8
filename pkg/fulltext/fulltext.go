// Package fulltext 计算消息内容的可检索文本投影。
package fulltext

import (
	"strings"
	"unicode"
)

// Project 将内容切分为小写词元并以空格拼接，写入时与原文一同保存。
func Project(content string) string {
	return strings.Join(Tokens(content), " ")
}

// Tokens 按字母与数字边界切分文本并转为小写。
func Tokens(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}
