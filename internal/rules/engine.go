package rules

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

const baseScore = 50

// Engine loads the configured rules and scores items against them.
type Engine struct {
	rules  ports.RuleRepository
	logger *slog.Logger
}

// NewEngine wires the rule repository.
func NewEngine(rules ports.RuleRepository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{rules: rules, logger: logger}
}

// Load fetches enabled rules in evaluation order and prepares their matchers.
func (e *Engine) Load(ctx context.Context) (*RuleSet, error) {
	list, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return Compile(list, e.logger), nil
}

// Score loads the rules and applies them to item.
func (e *Engine) Score(ctx context.Context, item *domain.Item) error {
	set, err := e.Load(ctx)
	if err != nil {
		return err
	}
	set.Apply(item)
	return nil
}

type compiledRule struct {
	rule     domain.Rule
	keywords []string
	expr     *regexp.Regexp
}

// RuleSet is an ordered, ready-to-evaluate snapshot of rules.
type RuleSet struct {
	rules  []compiledRule
	logger *slog.Logger
}

// Compile prepares rules in the given order. Rules with invalid regular
// expressions are kept but never match.
func Compile(list []domain.Rule, logger *slog.Logger) *RuleSet {
	if logger == nil {
		logger = slog.Default()
	}
	set := &RuleSet{logger: logger}
	for _, r := range list {
		if !r.Enabled {
			continue
		}
		cr := compiledRule{rule: r}
		switch r.Type {
		case domain.RuleKeyword:
			for _, kw := range strings.Split(r.Pattern, ",") {
				kw = strings.ToLower(strings.TrimSpace(kw))
				if kw != "" {
					cr.keywords = append(cr.keywords, kw)
				}
			}
		case domain.RuleRegex:
			expr, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				logger.Warn("invalid rule pattern, rule disabled for this run",
					"rule", r.Name, "pattern", r.Pattern, "error", err)
			} else {
				cr.expr = expr
			}
		}
		set.rules = append(set.rules, cr)
	}
	return set
}

// Len reports the number of rules in the set.
func (s *RuleSet) Len() int { return len(s.rules) }

// Apply sets item.Priority and item.PriorityScore from the matching rules.
func (s *RuleSet) Apply(item *domain.Item) {
	text := strings.ToLower(item.Title + " " + item.Content)

	var (
		totalBoost int
		target     *domain.Priority
		matched    []string
	)
	for _, cr := range s.rules {
		if !s.matches(cr, text) {
			continue
		}
		matched = append(matched, cr.rule.Name)
		totalBoost += cr.rule.PriorityBoost
		if cr.rule.TargetPriority != nil {
			p := *cr.rule.TargetPriority
			target = &p
		}
	}

	item.PriorityScore = clamp(baseScore+totalBoost, 0, 100)
	switch {
	case target != nil:
		item.Priority = *target
	case len(matched) == 0:
		// Unmatched items keep the default tier at the base score.
		item.Priority = domain.PriorityNone
	default:
		item.Priority = TierForScore(item.PriorityScore)
	}
	item.Analysis.Rules = &domain.RuleAnalysis{
		Matched:        matched,
		TotalBoost:     totalBoost,
		TargetPriority: target,
	}
}

func (s *RuleSet) matches(cr compiledRule, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("rule evaluation failed", "rule", cr.rule.Name, "panic", r)
			ok = false
		}
	}()

	switch cr.rule.Type {
	case domain.RuleKeyword:
		for _, kw := range cr.keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	case domain.RuleRegex:
		return cr.expr != nil && cr.expr.MatchString(text)
	case domain.RuleSemantic:
		// Semantic matching is not implemented; such rules never match.
		return false
	default:
		return false
	}
}

// TierForScore maps a rule score to a tier. Rule scores never produce CRITICAL.
func TierForScore(score int) domain.Priority {
	switch {
	case score >= 90:
		return domain.PriorityHigh
	case score >= 70:
		return domain.PriorityMedium
	case score >= 40:
		return domain.PriorityLow
	default:
		return domain.PriorityNone
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
