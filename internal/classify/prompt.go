package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"NewsRadar/internal/domain"
)

const maxPromptContent = 4000

const defaultSystemPrompt = "You assess news items for political relevance. Answer with a single JSON object and nothing else."

var codeFenceExpr = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// BuildPrompt renders the user prompt for one item.
func BuildPrompt(item domain.Item, sourceName string, tax Taxonomy) string {
	content := item.Content
	if utf8.RuneCountInString(content) > maxPromptContent {
		content = string([]rune(content)[:maxPromptContent]) + " …"
	}

	var b strings.Builder
	b.WriteString("Assess the following item.\n\n")
	fmt.Fprintf(&b, "Source: %s\nTitle: %s\nContent: %s\n\n", sourceName, item.Title, content)
	if len(tax.Categories) > 0 {
		fmt.Fprintf(&b, "Allowed ak values: %s\n", strings.Join(tax.Categories, ", "))
	}
	if len(tax.Tags) > 0 {
		fmt.Fprintf(&b, "Allowed tags: %s\n", strings.Join(tax.Tags, ", "))
	}
	b.WriteString(`Respond with JSON: {"relevant": bool, "priority": "none|low|medium|high|critical", "ak": string, "reasoning": string, "tags": [string]}`)
	return b.String()
}

// Assessment is the structured LLM answer.
type Assessment struct {
	Relevant  bool
	Priority  domain.Priority
	AK        string
	Reasoning string
	Tags      []string
}

type assessmentJSON struct {
	Relevant  *bool    `json:"relevant"`
	Priority  string   `json:"priority"`
	AK        string   `json:"ak"`
	Reasoning string   `json:"reasoning"`
	Tags      []string `json:"tags"`
}

// ParseAssessment extracts the JSON object from an LLM answer and validates it.
func ParseAssessment(text string) (Assessment, error) {
	raw := extractObject(text)
	if raw == "" {
		return Assessment{}, fmt.Errorf("no JSON object found in response")
	}

	var parsed assessmentJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Assessment{}, fmt.Errorf("decode assessment: %w", err)
	}
	if parsed.Relevant == nil {
		return Assessment{}, fmt.Errorf("assessment missing relevant flag")
	}

	out := Assessment{
		Relevant:  *parsed.Relevant,
		AK:        strings.TrimSpace(parsed.AK),
		Reasoning: strings.TrimSpace(parsed.Reasoning),
		Tags:      parsed.Tags,
	}
	if parsed.Priority != "" {
		p, err := domain.ParsePriority(parsed.Priority)
		if err != nil {
			return Assessment{}, fmt.Errorf("assessment priority: %w", err)
		}
		out.Priority = p
	} else if out.Relevant {
		out.Priority = domain.PriorityLow
	}
	if !out.Relevant {
		out.Priority = domain.PriorityNone
	}
	return out, nil
}

func extractObject(content string) string {
	if m := codeFenceExpr.FindStringSubmatch(content); len(m) > 1 {
		trimmed := strings.TrimSpace(m[1])
		if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
			return trimmed
		}
	}

	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
