package inference

import (
	"encoding/json"
	"strings"
)

func mustMarshalIndent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// extractJSONObject accepts JSON in either pure form or embedded within
// prose, taking the outermost {...}: try a full parse first, then fall
// back to a brace-matched substring.
func extractJSONObject(text string) (map[string]any, bool) {
	var direct map[string]any
	if err := json.Unmarshal([]byte(text), &direct); err == nil {
		return direct, true
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end <= start {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func toStringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toString(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func toFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	default:
		return fallback
	}
}

func toBool(v any, fallback bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	default:
		return fallback
	}
}

// normalizeRuleSet coerces a loosely-typed JSON object into a RuleSet;
// unknown or missing values fall back to defaults.
func normalizeRuleSet(obj map[string]any) RuleSet {
	def := DefaultRuleSet()
	rs := RuleSet{
		TargetEntities:   orDefaultList(toStringList(obj["target_entities"]), def.TargetEntities),
		TargetActions:    orDefaultList(toStringList(obj["target_actions"]), def.TargetActions),
		Locations:        toStringList(obj["locations"]),
		TimeConstraints:  toStringList(obj["time_constraints"]),
		IgnoreConditions: toStringList(obj["ignore_conditions"]),
		Sensitivity:      normalizeSensitivity(toString(obj["sensitivity"], def.Sensitivity)),
	}
	return rs
}

func orDefaultList(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

func normalizeSensitivity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "medium", "high":
		return strings.ToLower(strings.TrimSpace(s))
	default:
		return "medium"
	}
}

// parseAlertRuleSet parses a text-completion response into a RuleSet,
// leniently, falling back to defaults on any parse failure.
func parseAlertRuleSet(responseText string) RuleSet {
	obj, ok := extractJSONObject(responseText)
	if !ok {
		return DefaultRuleSet()
	}
	return normalizeRuleSet(obj)
}

// parseInferenceResponse parses a clip-analysis response:
// required label/summary/confidence; optional notify/reason/matched_rules/
// detected_entities/detected_actions with the documented defaults; invalid
// JSON degrades to the unknown/low-confidence fallback.
func parseInferenceResponse(responseText string) Result {
	obj, ok := extractJSONObject(responseText)
	if !ok {
		raw := responseText
		if len(raw) > 500 {
			raw = raw[:500]
		}
		return Result{
			Label:      "unknown",
			Summary:    raw,
			Confidence: 0.5,
			Raw:        responseText,
		}
	}

	matchedRules := toStringList(obj["matched_rules"])
	notifyDefault := len(matchedRules) > 0
	notify := toBool(obj["notify"], notifyDefault)

	reasonDefault := "No alert criteria matched"
	if notify {
		reasonDefault = "Matched configured alert criteria"
	}

	return Result{
		Label:            toString(obj["label"], "unknown"),
		Summary:          toString(obj["summary"], ""),
		Confidence:       toFloat(obj["confidence"], 0.5),
		ShouldNotify:     notify,
		AlertReason:      toString(obj["reason"], reasonDefault),
		MatchedRules:     matchedRules,
		DetectedEntities: toStringList(obj["detected_entities"]),
		DetectedActions:  toStringList(obj["detected_actions"]),
		Raw:              responseText,
	}
}
