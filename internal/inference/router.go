package inference

import (
	"context"
	"log/slog"

	"github.com/pingwatch/pingwatch/internal/config"
)

// Router routes clip analysis between a primary video-mode provider and a
// fallback image-mode provider.
type Router struct {
	primary  *providerClient
	fallback *providerClient
	cache    *ruleCache
	schema   *schemaValidator
}

func New(cfg config.InferenceConfig) *Router {
	return &Router{
		primary:  newProviderClient(cfg.PrimaryBaseURL, cfg.PrimaryToken, cfg.PrimaryModel, cfg.RequestTimeout),
		fallback: newProviderClient(cfg.FallbackBaseURL, cfg.FallbackToken, cfg.FallbackModel, cfg.RequestTimeout),
		cache:    newRuleCache(),
		schema:   newSchemaValidator(),
	}
}

// NormalizeAlertInstructions turns a free-form alert prompt into a rule
// set: cache lookup, primary-then-fallback text completion on miss, default rule
// set if both fail, caching the result regardless of which path produced it.
func (r *Router) NormalizeAlertInstructions(ctx context.Context, prompt string) RuleSet {
	if prompt == "" {
		return DefaultRuleSet()
	}
	if rs, ok := r.cache.get(prompt); ok {
		return rs
	}

	rs, ok := r.normalizeOnce(ctx, prompt)
	if !ok {
		rs = DefaultRuleSet()
	}
	r.cache.set(prompt, rs)
	return rs
}

func (r *Router) normalizeOnce(ctx context.Context, prompt string) (RuleSet, bool) {
	if r.primary.configured() {
		text, err := r.primary.textCompletion(ctx, IntentNormalizationPrompt, prompt)
		if err == nil {
			rs := parseAlertRuleSet(text)
			if err := r.schema.validateRuleSet(rs); err == nil {
				return rs, true
			}
			slog.Warn("normalized rule set failed schema validation", "prompt", prompt)
			return rs, true
		}
		slog.Warn("primary provider normalization failed", "error", err)
	}
	if r.fallback.configured() {
		text, err := r.fallback.textCompletion(ctx, IntentNormalizationPrompt, prompt)
		if err == nil {
			rs := parseAlertRuleSet(text)
			if err := r.schema.validateRuleSet(rs); err != nil {
				slog.Warn("normalized rule set failed schema validation", "prompt", prompt)
			}
			return rs, true
		}
		slog.Warn("fallback provider normalization failed", "error", err)
	}
	return RuleSet{}, false
}

// AnalyzeClip runs the clip through the primary video-mode provider; on
// any failure, fall back to image-mode on the other provider using
// extracted frames, which must be non-empty or the primary error bubbles.
func (r *Router) AnalyzeClip(ctx context.Context, userPrompt string, rules RuleSet, videoMime string, videoBytes []byte, frameDataURIs []string) (Result, error) {
	prompt := BuildClipAnalysisPrompt(userPrompt, rules)
	mime := normalizeVideoMime(videoMime)

	if r.primary.configured() && len(videoBytes) > 0 {
		text, err := r.primary.videoCompletion(ctx, prompt, toDataURI(mime, videoBytes))
		if err == nil {
			res := parseInferenceResponse(text)
			res.Provider = "primary"
			res.Model = r.primary.model
			return res, nil
		}
		slog.Warn("primary clip analysis failed, falling back", "error", err)
		if len(frameDataURIs) == 0 {
			return Result{}, err
		}
		if r.fallback.configured() {
			text, ferr := r.fallback.imageCompletion(ctx, prompt, frameDataURIs)
			if ferr == nil {
				res := parseInferenceResponse(text)
				res.Provider = "fallback"
				res.Model = r.fallback.model
				return res, nil
			}
		}
		return Result{}, err
	}

	if r.fallback.configured() && len(frameDataURIs) > 0 {
		text, err := r.fallback.imageCompletion(ctx, prompt, frameDataURIs)
		if err == nil {
			res := parseInferenceResponse(text)
			res.Provider = "fallback"
			res.Model = r.fallback.model
			return res, nil
		}
		return Result{}, err
	}

	return Result{}, errNoProviderAvailable
}
