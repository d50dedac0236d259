// Package inference implements the VLM router: primary video-mode and
// fallback image-mode calls, alert-intent normalization with a bounded
// cache, and lenient JSON-in-prose response parsing.
package inference

// RuleSet is the normalized alert intent.
type RuleSet struct {
	TargetEntities   []string `json:"target_entities"`
	TargetActions    []string `json:"target_actions"`
	Locations        []string `json:"locations"`
	TimeConstraints  []string `json:"time_constraints"`
	IgnoreConditions []string `json:"ignore_conditions"`
	Sensitivity      string   `json:"sensitivity"`
}

// DefaultRuleSet is used whenever normalization cannot run (empty prompt)
// or both providers fail.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		TargetEntities:   []string{"person"},
		TargetActions:    []string{"motion"},
		Locations:        []string{},
		TimeConstraints:  []string{},
		IgnoreConditions: []string{},
		Sensitivity:      "medium",
	}
}

// Result is the typed verdict the Worker writes back to the event.
type Result struct {
	Label            string
	Summary          string
	Confidence       float64
	Provider         string
	Model            string
	ShouldNotify     bool
	AlertReason      string
	MatchedRules     []string
	DetectedEntities []string
	DetectedActions  []string
	Raw              string
}
