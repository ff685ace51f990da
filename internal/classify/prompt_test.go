package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRadar/internal/domain"
)

func TestParseAssessment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    Assessment
		wantErr bool
	}{
		{
			name: "bare object",
			text: `{"relevant": true, "priority": "high", "ak": "Finanzen", "reasoning": "budget", "tags": ["haushalt"]}`,
			want: Assessment{Relevant: true, Priority: domain.PriorityHigh, AK: "Finanzen", Reasoning: "budget", Tags: []string{"haushalt"}},
		},
		{
			name: "fenced with prose",
			text: "Sure!\n```json\n{\"relevant\": true, \"priority\": \"critical\"}\n```\nDone.",
			want: Assessment{Relevant: true, Priority: domain.PriorityCritical},
		},
		{
			name: "embedded braces in strings",
			text: `Result: {"relevant": true, "priority": "medium", "reasoning": "uses {curly} text"} trailing`,
			want: Assessment{Relevant: true, Priority: domain.PriorityMedium, Reasoning: "uses {curly} text"},
		},
		{
			name: "not relevant forces none",
			text: `{"relevant": false, "priority": "high"}`,
			want: Assessment{Relevant: false, Priority: domain.PriorityNone},
		},
		{
			name: "relevant without priority defaults to low",
			text: `{"relevant": true}`,
			want: Assessment{Relevant: true, Priority: domain.PriorityLow},
		},
		{name: "no json", text: "I cannot help", wantErr: true},
		{name: "missing relevant", text: `{"priority": "low"}`, wantErr: true},
		{name: "bad priority", text: `{"relevant": true, "priority": "urgent"}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAssessment(tc.text)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildPromptTruncatesContent(t *testing.T) {
	t.Parallel()

	item := domain.Item{Title: "T", Content: strings.Repeat("ä", maxPromptContent+50)}
	prompt := BuildPrompt(item, "landtag", Taxonomy{Categories: []string{"Finanzen"}})
	assert.Contains(t, prompt, "Source: landtag")
	assert.Contains(t, prompt, "Allowed ak values: Finanzen")
	assert.Less(t, strings.Count(prompt, "ä"), maxPromptContent+1)
}
