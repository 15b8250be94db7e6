package authsdk

import (
	"maps"
	"slices"
	"time"

	"github.com/aussiebroadwan/passport/pkg/observable"
)

// Step is the active sign-in screen.
type Step string

const (
	StepEmail         Step = "email"
	StepVerification  Step = "verification"
	StepPassword      Step = "password"
	StepMagicCode     Step = "magic-code"
	StepPasskey       Step = "passkey"
	StepMissingFields Step = "missing-fields"
	StepResetPassword Step = "reset-password"
	StepConnectBrand  Step = "connect-brand"
	StepAuthenticated Step = "authenticated"
)

// DeliveryStep tracks a one-shot email delivery.
type DeliveryStep string

const (
	DeliveryIdle      DeliveryStep = "idle"
	DeliveryRequested DeliveryStep = "requested"
	DeliverySent      DeliveryStep = "sent"
)

// State is the session record observers render from. It is a plain value;
// only the SDK's transitions mutate it.
type State struct {
	Step     Step
	Email    string
	SignInID string
	Password string

	Token         string
	RefreshToken  string
	Authenticated bool

	Loading    bool
	Refreshing bool

	// Errors maps a field name, or GlobalField, to its error.
	Errors map[string]ErrorCode

	MissingRequiredFields []string

	MagicCodeStep        DeliveryStep
	MagicCodeResendAfter time.Duration
	ResetPasswordStep    DeliveryStep

	// gen changes whenever an in-flight sign-in response must be discarded.
	gen uint64
	// epoch changes on logout, invalidating in-flight refreshes.
	epoch uint64
}

// StateKey names a State field for change subscriptions.
type StateKey string

const (
	KeyStep                  StateKey = "step"
	KeyEmail                 StateKey = "email"
	KeySignInID              StateKey = "signInId"
	KeyPassword              StateKey = "password"
	KeyToken                 StateKey = "token"
	KeyRefreshToken          StateKey = "refreshToken"
	KeyAuthenticated         StateKey = "authenticated"
	KeyLoading               StateKey = "loading"
	KeyRefreshing            StateKey = "refreshing"
	KeyErrors                StateKey = "errors"
	KeyMissingRequiredFields StateKey = "missingRequiredFields"
	KeyMagicCodeStep         StateKey = "magicCodeStep"
	KeyResetPasswordStep     StateKey = "resetPasswordStep"
)

// Session is the observable session record.
type Session = observable.Record[State, StateKey]

func initialState() State {
	return State{
		Step:              StepEmail,
		Errors:            map[string]ErrorCode{},
		MagicCodeStep:     DeliveryIdle,
		ResetPasswordStep: DeliveryIdle,
	}
}

func newSession() *Session {
	return observable.New(initialState(), diffState, cloneState)
}

func cloneState(s State) State {
	s.Errors = maps.Clone(s.Errors)
	s.MissingRequiredFields = slices.Clone(s.MissingRequiredFields)
	return s
}

func diffState(a, b State) []StateKey {
	var keys []StateKey
	add := func(changed bool, k StateKey) {
		if changed {
			keys = append(keys, k)
		}
	}
	add(a.Step != b.Step, KeyStep)
	add(a.Email != b.Email, KeyEmail)
	add(a.SignInID != b.SignInID, KeySignInID)
	add(a.Password != b.Password, KeyPassword)
	add(a.Token != b.Token, KeyToken)
	add(a.RefreshToken != b.RefreshToken, KeyRefreshToken)
	add(a.Authenticated != b.Authenticated, KeyAuthenticated)
	add(a.Loading != b.Loading, KeyLoading)
	add(a.Refreshing != b.Refreshing, KeyRefreshing)
	add(!maps.Equal(a.Errors, b.Errors), KeyErrors)
	add(!slices.Equal(a.MissingRequiredFields, b.MissingRequiredFields), KeyMissingRequiredFields)
	add(a.MagicCodeStep != b.MagicCodeStep || a.MagicCodeResendAfter != b.MagicCodeResendAfter, KeyMagicCodeStep)
	add(a.ResetPasswordStep != b.ResetPasswordStep, KeyResetPasswordStep)
	return keys
}

// setError records code under its field, replacing any previous error there.
func (s *State) setError(code ErrorCode) {
	if s.Errors == nil {
		s.Errors = map[string]ErrorCode{}
	}
	s.Errors[FieldFor(code)] = code
}

// enterStep moves to step and drops state owned by the step being left.
func (s *State) enterStep(step Step) {
	if s.Step == step {
		return
	}
	s.Step = step
	s.Password = ""
	s.Errors = map[string]ErrorCode{}
	if step != StepMissingFields {
		s.MissingRequiredFields = nil
	}
	if step != StepResetPassword {
		s.ResetPasswordStep = DeliveryIdle
	}
}

// resetSignIn returns to the email step, keeping the email for convenience.
func (s *State) resetSignIn() {
	email := s.Email
	token, refresh, authed := s.Token, s.RefreshToken, s.Authenticated
	gen, epoch := s.gen, s.epoch

	*s = initialState()
	s.Email = email
	s.Token, s.RefreshToken, s.Authenticated = token, refresh, authed
	s.gen, s.epoch = gen+1, epoch
}
