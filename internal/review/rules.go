package review

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

// Rules is a rules pack loaded from the rulesFile setting.
type Rules struct {
	Focus             []string          `json:"focus,omitempty"`
	SeverityOverrides map[string]string `json:"severityOverrides,omitempty"`
	Required          []RequiredCheck   `json:"required,omitempty"`
}

// RequiredCheck is a policy check that every file review must evaluate.
type RequiredCheck struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// LoadRules loads a rules file from disk. Returns nil Rules and nil error if path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	for cat, sev := range rules.SeverityOverrides {
		if SeverityRank(Severity(strings.ToLower(sev))) == 0 {
			return nil, fmt.Errorf("rules file: invalid severity %q for category %q", sev, cat)
		}
	}
	return &rules, nil
}

// BuildRulesPromptSection returns additional prompt instructions derived from rules.
func BuildRulesPromptSection(rules *Rules) string {
	if rules == nil {
		return ""
	}

	var b strings.Builder

	if len(rules.Focus) > 0 {
		fmt.Fprintf(&b, "\nFocus areas: %s. Prioritize issues in these areas.\n",
			strings.Join(rules.Focus, ", "))
	}

	if len(rules.SeverityOverrides) > 0 {
		b.WriteString("\nSeverity policy:\n")
		cats := maps.Keys(rules.SeverityOverrides)
		slices.Sort(cats)
		for _, cat := range cats {
			fmt.Fprintf(&b, "- %s issues should be rated as %s severity.\n", cat, rules.SeverityOverrides[cat])
		}
	}

	if len(rules.Required) > 0 {
		b.WriteString("\nRequired checks (always evaluate these):\n")
		for _, req := range rules.Required {
			fmt.Fprintf(&b, "- [%s] %s\n", req.ID, req.Text)
		}
	}

	return b.String()
}

// ApplySeverityOverrides rewrites issue severities by category.
func ApplySeverityOverrides(issues []Issue, rules *Rules) []Issue {
	if rules == nil || len(rules.SeverityOverrides) == 0 {
		return issues
	}
	for i := range issues {
		if override, ok := rules.SeverityOverrides[strings.ToLower(issues[i].Category)]; ok {
			issues[i].Severity = ParseSeverity(override)
		}
	}
	return issues
}
