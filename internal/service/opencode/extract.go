package opencode

import (
	"sort"
	"strings"
)

// ExtractReplyText 从 message 接口的响应中提取回复文本。
//
// 优先取 parts 数组中第一个 text 非空的片段，其次依次尝试顶层 content、text 字段；
// 键名大小写不敏感，精确的小写与首字母大写形式优先。全为空白时返回空串。
func ExtractReplyText(result any) string {
	obj, isObj := result.(map[string]any)
	if !isObj {
		return ""
	}

	for _, candidate := range lookupFold(obj, "parts") {
		parts, isList := candidate.([]any)
		if !isList || len(parts) == 0 {
			continue
		}
		for _, p := range parts {
			part, isPart := p.(map[string]any)
			if !isPart {
				continue
			}
			if text := firstText(lookupFold(part, "text")); text != "" {
				return text
			}
		}
		break
	}

	for _, key := range []string{"content", "text"} {
		if text := firstText(lookupFold(obj, key)); text != "" {
			return text
		}
	}
	return ""
}

// firstText 返回第一个去除空白后非空的字符串值。
func firstText(values []any) string {
	for _, v := range values {
		s, isStr := v.(string)
		if !isStr {
			continue
		}
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// lookupFold 按 name、Name、其它大小写变体（字典序）的顺序返回存在的值。
func lookupFold(obj map[string]any, name string) []any {
	var values []any
	seen := make(map[string]bool, 2)
	for _, key := range []string{name, strings.ToUpper(name[:1]) + name[1:]} {
		if v, exists := obj[key]; exists && !seen[key] {
			values = append(values, v)
		}
		seen[key] = true
	}

	var others []string
	for key := range obj {
		if !seen[key] && strings.EqualFold(key, name) {
			others = append(others, key)
		}
	}
	sort.Strings(others)
	for _, key := range others {
		values = append(values, obj[key])
	}
	return values
}
