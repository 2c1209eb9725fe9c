package workflow

import (
	"encoding/json"
	"strings"
)

// maxFallbackApplications caps how many lines the non-JSON fallback keeps.
const maxFallbackApplications = 5

// parseApplications interprets a model response that was asked for a JSON
// array of strings. Markdown code fences are stripped first. If the text is
// not a JSON array, any other valid JSON is kept whole as a single entry,
// and anything else is split into bullet lines.
func parseApplications(text string) []string {
	cleaned := stripCodeFence(strings.TrimSpace(text))

	var list []string
	if err := json.Unmarshal([]byte(cleaned), &list); err == nil {
		return list
	}

	var other any
	if err := json.Unmarshal([]byte(cleaned), &other); err == nil {
		if _, isList := other.([]any); !isList {
			return []string{cleaned}
		}
	}

	return splitBulletLines(cleaned)
}

// stripCodeFence removes a leading markdown code fence, including an optional
// "json" language tag, returning the fenced body.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	parts := strings.Split(text, "```")
	if len(parts) < 2 {
		return text
	}
	body := parts[1]
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body)
}

func splitBulletLines(text string) []string {
	var apps []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "•-*"))
		if line == "" {
			continue
		}
		apps = append(apps, line)
		if len(apps) == maxFallbackApplications {
			break
		}
	}
	return apps
}
