// Package scope gates parsed queries: content safety first, then the
// supported-coverage decision that routes to retrieval or fallback.
package scope

import (
	"github.com/SweetPickAI/sweetpick/engine/domain"
)

// Decision is the outcome of validating one parsed query. Exactly one of
// three shapes occurs: SafetyErr set (nothing downstream runs), Allowed true
// (retrieval), or a non-none Fallback scope (fallback handler).
type Decision struct {
	Allowed   bool
	Fallback  domain.FallbackDecision
	SafetyErr error
}

// Validator is pure: the same ParsedQuery always yields the same Decision.
// Cuisine support is checked against the core list, which is narrower than
// the parser's recognition vocabulary.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Validate applies safety checks, then the two-axis coverage table. A safety
// failure short-circuits and bypasses both retrieval and fallback.
func (v *Validator) Validate(p domain.ParsedQuery) Decision {
	if err := domain.ValidateCulturalFit(p); err != nil {
		return Decision{SafetyErr: err}
	}

	locationOK := p.LocationStatus != domain.LocationUnsupported
	cuisineOK := domain.IsCoreCuisine(p.CuisineType)

	switch {
	case locationOK && cuisineOK:
		return Decision{Allowed: true, Fallback: domain.FallbackDecision{Scope: domain.FallbackNone}}
	case locationOK && !cuisineOK:
		return Decision{Fallback: domain.FallbackDecision{
			Scope:           domain.FallbackCuisine,
			OriginalCuisine: p.CuisineType,
		}}
	case !locationOK && cuisineOK:
		return Decision{Fallback: domain.FallbackDecision{
			Scope:            domain.FallbackLocation,
			OriginalLocation: p.OriginalLocation,
		}}
	default:
		return Decision{Fallback: domain.FallbackDecision{
			Scope:            domain.FallbackBoth,
			OriginalLocation: p.OriginalLocation,
			OriginalCuisine:  p.CuisineType,
		}}
	}
}
