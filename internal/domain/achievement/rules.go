// Package achievement defines the static rule catalog the batch evaluator
// grants against.
package achievement

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Category names the activity counter a rule thresholds on.
type Category string

const (
	CategoryPlantings    Category = "plantings"
	CategoryHarvests     Category = "harvests"
	CategoryWaterings    Category = "waterings"
	CategoryRegistration Category = "registration"
)

// IsValid reports whether the category is known.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPlantings, CategoryHarvests, CategoryWaterings, CategoryRegistration:
		return true
	}
	return false
}

// Rule grants one achievement when an account's category counter reaches
// Threshold. AutoApprove rules credit Reward sunflowers immediately; others
// stay pending for manual review.
type Rule struct {
	Key         string   `yaml:"key"`
	Title       string   `yaml:"title"`
	Category    Category `yaml:"category"`
	Threshold   int      `yaml:"threshold"`
	Reward      int      `yaml:"reward"`
	AutoApprove bool     `yaml:"auto_approve"`
}

// DefaultRules returns the built-in achievement catalog.
func DefaultRules() []Rule {
	return []Rule{
		{Key: "first_sprout", Title: "First Sprout", Category: CategoryPlantings, Threshold: 1, Reward: 50, AutoApprove: true},
		{Key: "green_thumb", Title: "Green Thumb", Category: CategoryPlantings, Threshold: 25, Reward: 250, AutoApprove: true},
		{Key: "first_harvest", Title: "First Harvest", Category: CategoryHarvests, Threshold: 1, Reward: 100, AutoApprove: true},
		{Key: "bumper_crop", Title: "Bumper Crop", Category: CategoryHarvests, Threshold: 50, Reward: 500, AutoApprove: false},
		{Key: "rain_maker", Title: "Rain Maker", Category: CategoryWaterings, Threshold: 100, Reward: 150, AutoApprove: true},
		{Key: "welcome_gardener", Title: "Welcome, Gardener", Category: CategoryRegistration, Threshold: 1, Reward: 25, AutoApprove: true},
	}
}

// ParseRules reads a YAML rule catalog. It validates every rule so a broken
// catalog fails at load time, not grant time.
func ParseRules(raw []byte) ([]Rule, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("parse rules: no rules defined")
	}
	if err := ValidateRules(doc.Rules); err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

// ValidateRules checks catalog invariants: unique keys, known categories,
// positive thresholds, non-negative rewards.
func ValidateRules(rules []Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if rule.Key == "" {
			return fmt.Errorf("rule with empty key")
		}
		if _, dup := seen[rule.Key]; dup {
			return fmt.Errorf("duplicate rule key: %s", rule.Key)
		}
		seen[rule.Key] = struct{}{}
		if !rule.Category.IsValid() {
			return fmt.Errorf("rule %s: unknown category %q", rule.Key, rule.Category)
		}
		if rule.Threshold <= 0 {
			return fmt.Errorf("rule %s: threshold must be positive", rule.Key)
		}
		if rule.Reward < 0 {
			return fmt.Errorf("rule %s: reward must not be negative", rule.Key)
		}
	}
	return nil
}
