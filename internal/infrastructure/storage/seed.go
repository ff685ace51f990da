package storage

import (
	"context"
	"fmt"
	"strings"

	"NewsRadar/internal/config"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// Seed upserts the sources and rules listed in configuration. Rules are keyed
// by name.
func Seed(ctx context.Context, sources ports.SourceRepository, rules ports.RuleRepository, cfg config.Config) error {
	for _, sc := range cfg.Sources {
		source := domain.Source{
			ID:                   sc.ID,
			Name:                 sc.Name,
			Type:                 sc.Type,
			Config:               sc.Config,
			Enabled:              sc.Enabled == nil || *sc.Enabled,
			FetchIntervalMinutes: sc.FetchIntervalMinutes,
		}
		if source.Name == "" {
			source.Name = source.ID
		}
		if err := sources.Upsert(ctx, source); err != nil {
			return fmt.Errorf("seed source %s: %w", sc.ID, err)
		}
	}

	for _, rc := range cfg.Rules {
		rule, err := ruleFromConfig(rc)
		if err != nil {
			return err
		}
		if err := rules.Upsert(ctx, rule); err != nil {
			return fmt.Errorf("seed rule %s: %w", rc.Name, err)
		}
	}
	return nil
}

func ruleFromConfig(rc config.RuleConfig) (domain.Rule, error) {
	rule := domain.Rule{
		ID:            strings.ToLower(strings.TrimSpace(rc.Name)),
		Name:          rc.Name,
		Type:          domain.RuleType(rc.Type),
		Pattern:       rc.Pattern,
		PriorityBoost: rc.PriorityBoost,
		Enabled:       rc.Enabled == nil || *rc.Enabled,
		Order:         rc.Order,
	}
	if rc.TargetPriority != "" {
		p, err := domain.ParsePriority(rc.TargetPriority)
		if err != nil {
			return domain.Rule{}, fmt.Errorf("seed rule %s: %w", rc.Name, err)
		}
		rule.TargetPriority = &p
	}
	return rule, nil
}
