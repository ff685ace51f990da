package domain

// RuleType selects how a rule's pattern is interpreted.
type RuleType string

const (
	RuleKeyword  RuleType = "keyword"
	RuleRegex    RuleType = "regex"
	RuleSemantic RuleType = "semantic"
)

// Rule is a configured matcher contributing a boost and optionally a target tier.
type Rule struct {
	ID             string
	Name           string
	Type           RuleType
	Pattern        string
	PriorityBoost  int
	TargetPriority *Priority
	Enabled        bool
	Order          int
}
