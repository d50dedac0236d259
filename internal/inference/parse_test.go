package inference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInferenceResponse_PureJSON(t *testing.T) {
	res := parseInferenceResponse(`{"label":"person","summary":"a person at the door","confidence":0.92,"notify":true,"reason":"matched person+motion"}`)
	assert.Equal(t, "person", res.Label)
	assert.Equal(t, 0.92, res.Confidence)
	assert.True(t, res.ShouldNotify)
	assert.Equal(t, "matched person+motion", res.AlertReason)
}

func TestParseInferenceResponse_JSONEmbeddedInProse(t *testing.T) {
	text := "Here is my analysis:\n" + `{"label":"package","summary":"a box was dropped off","confidence":0.7}` + "\nEnd of analysis."
	res := parseInferenceResponse(text)
	assert.Equal(t, "package", res.Label)
	assert.Equal(t, 0.7, res.Confidence)
	// notify defaults to false since matched_rules is absent/empty
	assert.False(t, res.ShouldNotify)
}

func TestParseInferenceResponse_UnparsableFallsBackToUnknown(t *testing.T) {
	res := parseInferenceResponse("the model just rambled with no JSON at all")
	assert.Equal(t, "unknown", res.Label)
	assert.Equal(t, 0.5, res.Confidence)
	assert.False(t, res.ShouldNotify)
}

func TestParseInferenceResponse_TruncatesLongUnparsableRaw(t *testing.T) {
	res := parseInferenceResponse(strings.Repeat("x", 1000))
	assert.Len(t, res.Summary, 500)
}

func TestParseAlertRuleSet_FallsBackToDefaultOnGarbage(t *testing.T) {
	rs := parseAlertRuleSet("not json")
	assert.Equal(t, DefaultRuleSet(), rs)
}

func TestParseAlertRuleSet_NormalizesSensitivity(t *testing.T) {
	rs := parseAlertRuleSet(`{"target_entities":["dog"],"sensitivity":"EXTREME"}`)
	assert.Equal(t, []string{"dog"}, rs.TargetEntities)
	assert.Equal(t, "medium", rs.Sensitivity) // unrecognized value degrades to medium
}

func TestRuleCache_SetAndGetRoundtrip(t *testing.T) {
	c := newRuleCache()
	rs := RuleSet{Sensitivity: "high"}
	c.set("Alert me about People ", rs)

	got, ok := c.get("alert me about people") // case/whitespace-insensitive key
	assert.True(t, ok)
	assert.Equal(t, rs, got)
}

func TestRuleCache_OverflowClearsInsteadOfEvicting(t *testing.T) {
	c := newRuleCache()
	c.limit = 2
	c.set("a", RuleSet{Sensitivity: "low"})
	c.set("b", RuleSet{Sensitivity: "low"})
	c.set("c", RuleSet{Sensitivity: "low"}) // triggers full clear, then inserts c

	_, aStillThere := c.get("a")
	_, cThere := c.get("c")
	assert.False(t, aStillThere)
	assert.True(t, cThere)
}
