package inference

// IntentNormalizationPrompt is the strict system prompt demanding a JSON
// object with exactly the rule-set fields.
const IntentNormalizationPrompt = `You convert a user's free-form home-security alert request into a strict JSON object.
Respond with ONLY a JSON object with exactly these fields:
  target_entities: array of strings (e.g. ["person", "vehicle"])
  target_actions: array of strings (e.g. ["loitering", "package_pickup"])
  locations: array of strings (e.g. ["front porch"])
  time_constraints: array of strings (e.g. ["after 10pm"])
  ignore_conditions: array of strings (e.g. ["own vehicle", "mail carrier"])
  sensitivity: one of "low", "medium", "high"
Unknown or unspecified values should use sensible defaults, never omit a field.`

// SceneAnalysisPrompt is the fixed preamble combined with the user prompt
// and normalized rules JSON for clip analysis.
const SceneAnalysisPrompt = `You are a home-security video analyst. Examine the provided clip (or frames)
and decide whether it matches the user's alert intent below. Respond with
ONLY a JSON object with fields:
  label: short string classification (e.g. "person_detected", "no_activity")
  summary: one or two sentence description of what happens in the clip
  confidence: float between 0 and 1
  notify: boolean, true if this clip matches the user's alert intent
  reason: short string explaining the notify decision
  matched_rules: array of strings naming which rule(s) matched
  detected_entities: array of strings
  detected_actions: array of strings`

// BuildClipAnalysisPrompt combines the fixed preamble, the raw user
// prompt, and the normalized rules JSON.
func BuildClipAnalysisPrompt(userPrompt string, rules RuleSet) string {
	rulesJSON := mustMarshalIndent(rules)
	out := SceneAnalysisPrompt + "\n\nUser alert intent: "
	if userPrompt == "" {
		out += "(none specified; use default sensitivity to person/motion events)"
	} else {
		out += userPrompt
	}
	out += "\n\nNormalized rules:\n" + rulesJSON
	return out
}
