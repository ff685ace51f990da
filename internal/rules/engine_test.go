package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/infrastructure/storage"
)

func prio(p domain.Priority) *domain.Priority { return &p }

func TestRuleSetApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rules     []domain.Rule
		title     string
		content   string
		wantPrio  domain.Priority
		wantScore int
	}{
		{
			name:      "no rules",
			title:     "Wetter morgen",
			wantPrio:  domain.PriorityNone,
			wantScore: 50,
		},
		{
			name: "keyword boost with target",
			rules: []domain.Rule{
				{Name: "budget", Type: domain.RuleKeyword, Pattern: "haushalt, kürzung", PriorityBoost: 30, TargetPriority: prio(domain.PriorityHigh), Enabled: true},
			},
			title:     "Haushaltskürzungen im Landtag",
			wantPrio:  domain.PriorityHigh,
			wantScore: 80,
		},
		{
			name: "boosts are additive",
			rules: []domain.Rule{
				{Name: "a", Type: domain.RuleKeyword, Pattern: "schule", PriorityBoost: 25, Enabled: true, Order: 1},
				{Name: "b", Type: domain.RuleRegex, Pattern: `lehrer\w*`, PriorityBoost: 20, Enabled: true, Order: 2},
			},
			content:   "Die Schule sucht Lehrerinnen",
			wantPrio:  domain.PriorityHigh,
			wantScore: 95,
		},
		{
			name: "later target wins",
			rules: []domain.Rule{
				{Name: "first", Type: domain.RuleKeyword, Pattern: "klima", TargetPriority: prio(domain.PriorityCritical), Enabled: true, Order: 1},
				{Name: "second", Type: domain.RuleKeyword, Pattern: "klima", TargetPriority: prio(domain.PriorityLow), Enabled: true, Order: 2},
			},
			title:     "Klimagesetz",
			wantPrio:  domain.PriorityLow,
			wantScore: 50,
		},
		{
			name: "matched rule without target uses thresholds",
			rules: []domain.Rule{
				{Name: "minor", Type: domain.RuleKeyword, Pattern: "verkehr", PriorityBoost: 5, Enabled: true},
			},
			title:     "Verkehr",
			wantPrio:  domain.PriorityLow,
			wantScore: 55,
		},
		{
			name: "negative boost clamps at zero",
			rules: []domain.Rule{
				{Name: "spam", Type: domain.RuleKeyword, Pattern: "gewinnspiel", PriorityBoost: -100, Enabled: true},
			},
			title:     "Gewinnspiel!",
			wantPrio:  domain.PriorityNone,
			wantScore: 0,
		},
		{
			name: "invalid regex is skipped",
			rules: []domain.Rule{
				{Name: "broken", Type: domain.RuleRegex, Pattern: "([a-z", PriorityBoost: 40, Enabled: true, Order: 1},
				{Name: "ok", Type: domain.RuleKeyword, Pattern: "bahn", PriorityBoost: 20, Enabled: true, Order: 2},
			},
			title:     "Bahnstreik",
			wantPrio:  domain.PriorityMedium,
			wantScore: 70,
		},
		{
			name: "semantic never matches",
			rules: []domain.Rule{
				{Name: "sem", Type: domain.RuleSemantic, Pattern: "anything", PriorityBoost: 40, Enabled: true},
			},
			title:     "anything",
			wantPrio:  domain.PriorityNone,
			wantScore: 50,
		},
		{
			name: "disabled rule ignored",
			rules: []domain.Rule{
				{Name: "off", Type: domain.RuleKeyword, Pattern: "x", PriorityBoost: 40, Enabled: false},
			},
			title:     "x",
			wantPrio:  domain.PriorityNone,
			wantScore: 50,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			item := domain.Item{Title: tc.title, Content: tc.content}
			Compile(tc.rules, nil).Apply(&item)
			assert.Equal(t, tc.wantPrio, item.Priority)
			assert.Equal(t, tc.wantScore, item.PriorityScore)
		})
	}
}

func TestTierForScore(t *testing.T) {
	t.Parallel()

	cases := map[int]domain.Priority{
		100: domain.PriorityHigh,
		90:  domain.PriorityHigh,
		89:  domain.PriorityMedium,
		70:  domain.PriorityMedium,
		69:  domain.PriorityLow,
		40:  domain.PriorityLow,
		39:  domain.PriorityNone,
		0:   domain.PriorityNone,
	}
	for score, want := range cases {
		assert.Equal(t, want, TierForScore(score), "score %d", score)
	}
}

func TestEngineScoreIsDeterministic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Rules.Upsert(ctx, domain.Rule{ID: "r2", Name: "late", Type: domain.RuleKeyword, Pattern: "rente", TargetPriority: prio(domain.PriorityMedium), PriorityBoost: 5, Enabled: true, Order: 20}))
	require.NoError(t, store.Rules.Upsert(ctx, domain.Rule{ID: "r1", Name: "early", Type: domain.RuleKeyword, Pattern: "rente", TargetPriority: prio(domain.PriorityHigh), PriorityBoost: 10, Enabled: true, Order: 10}))

	engine := NewEngine(store.Rules, nil)
	for i := 0; i < 3; i++ {
		item := domain.Item{Title: "Rentenreform"}
		require.NoError(t, engine.Score(ctx, &item))
		assert.Equal(t, domain.PriorityMedium, item.Priority)
		assert.Equal(t, 65, item.PriorityScore)
		assert.Equal(t, []string{"early", "late"}, item.Analysis.Rules.Matched)
	}
}
