package xhsclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const initialStateMarker = "window.__INITIAL_STATE__="

// ErrNoInitialState 页面里找不到 window.__INITIAL_STATE__
var ErrNoInitialState = errors.New("initial state not found")

// ExtractInitialState 取出页面内嵌的 window.__INITIAL_STATE__ 并解析
func ExtractInitialState(page string) (map[string]any, error) {
	_, rest, ok := strings.Cut(page, initialStateMarker)
	if !ok {
		return nil, ErrNoInitialState
	}
	if end := strings.Index(rest, "</script>"); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.TrimRight(strings.TrimSpace(rest), ";")

	var state map[string]any
	if err := json.Unmarshal([]byte(undefinedToNull(rest)), &state); err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}
	return state, nil
}

// undefinedToNull 把字符串字面量之外的 undefined 换成 null
func undefinedToNull(s string) string {
	const word = "undefined"
	var sb strings.Builder
	sb.Grow(len(s))
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inStr {
			sb.WriteByte(ch)
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		if ch == '"' {
			inStr = true
			sb.WriteByte(ch)
			continue
		}
		if strings.HasPrefix(s[i:], word) && !isIdent(s, i-1) && !isIdent(s, i+len(word)) {
			sb.WriteString("null")
			i += len(word) - 1
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

func isIdent(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// path 按 key 逐层取值，中途类型不对返回 nil
func path(v any, keys ...string) any {
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[k]
	}
	return v
}

func str(v any, keys ...string) string {
	s, _ := path(v, keys...).(string)
	return s
}
