package authsdk_test

import (
	"testing"

	"github.com/aussiebroadwan/passport/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestParseCondition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    authsdk.Condition
		wantErr bool
	}{
		{in: "authenticated", want: authsdk.Condition{Kind: authsdk.CondAuthenticated}},
		{in: " unauthenticated ", want: authsdk.Condition{Kind: authsdk.CondUnauthenticated}},
		{in: "step:magic-code", want: authsdk.Condition{Kind: authsdk.CondSignInStep, Step: authsdk.StepMagicCode}},
		{in: "missing-fields", want: authsdk.Condition{Kind: authsdk.CondMissingFields}},
		{in: "consent-required", want: authsdk.Condition{Kind: authsdk.CondConsentRequired}},
		{in: "step:checkout", wantErr: true},
		{in: "step", wantErr: true},
		{in: "loading:yes", wantErr: true},
		{in: "signed-in", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := authsdk.ParseCondition(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) authsdk.Condition {
	t.Helper()
	c, err := authsdk.ParseCondition(s)
	require.NoError(t, err)
	return c
}

func TestEvaluateCondition(t *testing.T) {
	t.Parallel()

	authed := authsdk.State{Step: authsdk.StepAuthenticated, Authenticated: true}
	missing := authsdk.State{Step: authsdk.StepMissingFields, MissingRequiredFields: []string{"country"}}
	refreshing := authsdk.State{Step: authsdk.StepAuthenticated, Authenticated: true, Refreshing: true}
	required := &authsdk.ConsentState{Step: authsdk.ConsentRequired}
	granted := &authsdk.ConsentState{Step: authsdk.ConsentRedirecting, HasConsent: true}
	submitting := &authsdk.ConsentState{Step: authsdk.ConsentSubmitting}

	tests := []struct {
		cond    string
		st      authsdk.State
		consent *authsdk.ConsentState
		want    bool
	}{
		{cond: "authenticated", st: authed, want: true},
		{cond: "authenticated", st: missing, want: false},
		{cond: "unauthenticated", st: missing, want: true},
		{cond: "step:missing-fields", st: missing, want: true},
		{cond: "step:password", st: missing, want: false},
		{cond: "missing-fields", st: missing, want: true},
		{cond: "missing-fields", st: authed, want: false},
		{cond: "has-consent", st: authed, consent: granted, want: true},
		{cond: "has-consent", st: authed, want: false},
		{cond: "consent-required", st: authed, consent: required, want: true},
		{cond: "consent-required", st: authed, consent: granted, want: false},
		{cond: "loading", st: refreshing, want: true},
		{cond: "loading", st: authed, consent: submitting, want: true},
		{cond: "loading", st: authed, consent: required, want: false},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, mustParse(t, tt.cond).Evaluate(tt.st, tt.consent), tt.cond)
	}
}
