package router

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/itom-platform/orchestrator/internal/registry"
)

// RuleConfig is one routing rule as loaded from an external JSON
// configuration file. The original implementation carried two competing
// schemas for this (router.py's domains/routing_rules/capability_mappings
// document and routing_config.py's simpler version/rules/default_domain
// document); this module keeps only the latter, simpler shape as the
// single canonical schema.
type RuleConfig struct {
	RuleID      string          `json:"rule_id"`
	Name        string          `json:"name"`
	Priority    int             `json:"priority"`
	Domain      registry.Domain `json:"domain,omitempty"`
	Keywords    []string        `json:"keywords,omitempty"`
	TargetAgent string          `json:"target_agent,omitempty"`
	Capability  string          `json:"capability,omitempty"`
	Enabled     bool            `json:"enabled"`
}

// RulesDocument is the top-level externalized routing configuration.
type RulesDocument struct {
	Version       string         `json:"version"`
	Rules         []RuleConfig   `json:"rules"`
	DefaultDomain registry.Domain `json:"default_domain,omitempty"`
}

// LoadRulesDocument reads and validates a routing rules configuration
// file. Returns (nil, nil) if path does not exist -- callers fall back to
// the built-in default rule set.
func LoadRulesDocument(path string) (*RulesDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read routing config: %w", err)
	}

	var doc RulesDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON in routing config: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("routing config missing required field: version")
	}

	if errs := ValidateRulesDocument(doc); len(errs) > 0 {
		return nil, fmt.Errorf("routing config validation failed: %v", errs)
	}
	return &doc, nil
}

// ValidateRulesDocument checks a RulesDocument for consistency: duplicate
// rule IDs, rules with no matching criteria at all, and an all-disabled
// rule set.
func ValidateRulesDocument(doc RulesDocument) []string {
	var errs []string

	seen := map[string]bool{}
	enabledCount := 0
	for _, rule := range doc.Rules {
		if seen[rule.RuleID] {
			errs = append(errs, fmt.Sprintf("duplicate rule_id: '%s'", rule.RuleID))
		}
		seen[rule.RuleID] = true

		if rule.Domain == "" && len(rule.Keywords) == 0 && rule.Capability == "" && rule.TargetAgent == "" {
			errs = append(errs, fmt.Sprintf("rule '%s' has no matching criteria (no domain, keywords, capability, or target_agent)", rule.RuleID))
		}
		if rule.Enabled {
			enabledCount++
		}
	}
	if len(doc.Rules) > 0 && enabledCount == 0 {
		errs = append(errs, "all routing rules are disabled")
	}
	return errs
}

// ToRules converts the enabled entries of a RulesDocument into Rule
// values ready for Router construction.
func (d RulesDocument) ToRules() []Rule {
	out := make([]Rule, 0, len(d.Rules))
	for _, rc := range d.Rules {
		if !rc.Enabled {
			continue
		}
		out = append(out, Rule{
			Name:        rc.Name,
			Priority:    rc.Priority,
			Domain:      rc.Domain,
			Keywords:    rc.Keywords,
			TargetAgent: rc.TargetAgent,
			Capability:  rc.Capability,
		})
	}
	return out
}
