package authsdk

import (
	"fmt"
	"slices"
	"strings"
)

// ConditionKind enumerates the render conditions a UI can gate on.
type ConditionKind int

const (
	CondAuthenticated ConditionKind = iota + 1
	CondUnauthenticated
	CondSignInStep
	CondMissingFields
	CondHasConsent
	CondConsentRequired
	CondLoading
)

var conditionNames = map[ConditionKind]string{
	CondAuthenticated:   "authenticated",
	CondUnauthenticated: "unauthenticated",
	CondSignInStep:      "step",
	CondMissingFields:   "missing-fields",
	CondHasConsent:      "has-consent",
	CondConsentRequired: "consent-required",
	CondLoading:         "loading",
}

var signInSteps = []Step{
	StepEmail, StepVerification, StepPassword, StepMagicCode, StepPasskey,
	StepMissingFields, StepResetPassword, StepConnectBrand, StepAuthenticated,
}

// Condition is a parsed render condition. Step is only meaningful for
// CondSignInStep.
type Condition struct {
	Kind ConditionKind
	Step Step
}

// ParseCondition parses "authenticated", "step:password" and friends.
// Unknown names are an error, never a condition that silently fails.
func ParseCondition(s string) (Condition, error) {
	name, arg, hasArg := strings.Cut(strings.TrimSpace(s), ":")
	for kind, n := range conditionNames {
		if n != name {
			continue
		}
		if kind != CondSignInStep {
			if hasArg {
				return Condition{}, fmt.Errorf("condition %q takes no argument", name)
			}
			return Condition{Kind: kind}, nil
		}
		step := Step(arg)
		if !slices.Contains(signInSteps, step) {
			return Condition{}, fmt.Errorf("condition %q: unknown step %q", name, arg)
		}
		return Condition{Kind: kind, Step: step}, nil
	}
	return Condition{}, fmt.Errorf("unknown condition %q", s)
}

func (c Condition) String() string {
	if c.Kind == CondSignInStep {
		return conditionNames[c.Kind] + ":" + string(c.Step)
	}
	return conditionNames[c.Kind]
}

// Evaluate reports whether the condition holds. consent may be nil when the
// page has no consent flow.
func (c Condition) Evaluate(st State, consent *ConsentState) bool {
	switch c.Kind {
	case CondAuthenticated:
		return st.Authenticated
	case CondUnauthenticated:
		return !st.Authenticated
	case CondSignInStep:
		return st.Step == c.Step
	case CondMissingFields:
		return len(st.MissingRequiredFields) > 0
	case CondHasConsent:
		return consent != nil && consent.HasConsent
	case CondConsentRequired:
		return consent != nil && consent.Step == ConsentRequired
	case CondLoading:
		return st.Loading || st.Refreshing ||
			(consent != nil && (consent.Step == ConsentLoading || consent.Step == ConsentSubmitting))
	}
	panic(fmt.Sprintf("authsdk: unhandled condition kind %d", c.Kind))
}
