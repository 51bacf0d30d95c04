package llm

import "strings"

// stripCodeFence removes a leading/trailing ```json or ``` fence from an
// LLM reply before JSON parsing, per spec.md §4.4 ("extracted from any
// code-fence wrapper before parsing").
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "JSON")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// splitKeywordsFallback implements extract_keywords's parse-failure
// fallback: split the raw reply on commas after stripping quote
// characters.
func splitKeywordsFallback(raw string) []string {
	cleaned := strings.NewReplacer(`"`, "", "'", "", "[", "", "]", "").Replace(raw)
	parts := strings.Split(cleaned, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			keywords = append(keywords, p)
		}
	}
	return keywords
}
