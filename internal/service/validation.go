package service

import (
	"strings"

	"github.com/google/uuid"
)

// Entity 是消息中的一段标注，Start 与 End 为字符（rune）偏移，左闭右开。
type Entity struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	ID    string `json:"id"`
}

// ValidateEntities 检查每个标注都与它引用的消息子串完全一致。
func ValidateEntities(message string, entities []Entity) error {
	if len(entities) == 0 {
		return nil
	}
	runes := []rune(message)
	for i, e := range entities {
		if e.Start < 0 || e.End <= e.Start || e.End > len(runes) {
			return invalid("entities", "entity %d span [%d,%d) out of range", i, e.Start, e.End)
		}
		if string(runes[e.Start:e.End]) != e.ID {
			return invalid("entities", "entity %d does not match message text", i)
		}
	}
	return nil
}

// NormalizeConversationID 校验会话 ID，为空时生成一个新的。返回规范格式的小写 UUID。
func NormalizeConversationID(id string) (string, error) {
	if id == "" {
		return uuid.NewString(), nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", invalid("conversation_id", "must be a valid UUID")
	}
	return parsed.String(), nil
}

// DeriveTitle 截取去除首尾空白后消息的前 maxRunes 个字符作为会话标题。
func DeriveTitle(message string, maxRunes int) string {
	title := strings.TrimSpace(message)
	if maxRunes <= 0 {
		return title
	}
	runes := []rune(title)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return title
}
