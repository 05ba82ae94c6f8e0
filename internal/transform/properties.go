package transform

import (
	"regexp"
	"strings"
)

// placeholders are property values that carry no information. Matching is
// case-insensitive and ignores surrounding brackets, so "[[Unknown]]" and
// "[not provided]" are stripped too.
var placeholders = map[string]struct{}{
	"":             {},
	"unknown":      {},
	"n/a":          {},
	"not set":      {},
	"not provided": {},
	"undefined":    {},
	"placeholder":  {},
}

func isPlaceholder(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	for len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	_, ok := placeholders[s]
	return ok
}

// FilterProperties returns a copy of props without nil values and
// placeholder strings.
func FilterProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if isPlaceholder(val) {
				continue
			}
		case *string:
			if val == nil || isPlaceholder(*val) {
				continue
			}
			v = *val
		}
		out[k] = v
	}
	return out
}

var (
	customSuffix     = regexp.MustCompile(`__c$`)
	edgeUnderscores  = regexp.MustCompile(`^_+|_+$`)
	underscoreGroups = regexp.MustCompile(`_+`)
)

// NormalizePropertyName lowercases a CRM property name, drops the custom
// field suffix and collapses underscores.
func NormalizePropertyName(key string) string {
	s := strings.ToLower(key)
	s = customSuffix.ReplaceAllString(s, "")
	s = edgeUnderscores.ReplaceAllString(s, "")
	return underscoreGroups.ReplaceAllString(s, "_")
}

func normalizeKeys(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[NormalizePropertyName(k)] = v
	}
	return out
}
