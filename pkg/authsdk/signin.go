package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/passport/pkg/captcha"
)

// PasskeyAuthenticator produces a WebAuthn assertion for the given options.
// The returned JSON is posted to the service unchanged.
type PasskeyAuthenticator interface {
	GetAssertion(ctx context.Context, opts PasskeyOptions) (json.RawMessage, error)
}

// CaptchaGate is the part of *captcha.Gate the sign-in flow needs.
type CaptchaGate interface {
	Execute(ctx context.Context, feature captcha.Feature) (*captcha.Result, error)
}

// SignIn is the sign-in state machine. Every network transition returns an
// ErrorCode for expected failures and an error only for misuse.
type SignIn struct {
	client   *SDKClient
	session  *Session
	tokens   *Tokens
	gate     CaptchaGate
	profile  *Profile
	passkeys PasskeyAuthenticator
	ready    func() bool
	timeout  time.Duration
	log      *slog.Logger
}

// pending identifies one in-flight transition. Its result is applied only if
// nothing superseded it.
type pending struct {
	gen uint64
	sid string
	st  State
}

// ============================================================================
// Transition plumbing
// ============================================================================

// begin checks that op may run from the current step and takes the loading
// flag.
func (s *SignIn) begin(op string, needSID bool, from ...Step) (pending, ErrorCode, error) {
	if s.ready != nil && !s.ready() {
		return pending{}, "", fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}

	var (
		p    pending
		code ErrorCode
		err  error
	)
	s.session.Update(func(st *State) {
		switch {
		case needSID && st.SignInID == "":
			err = fmt.Errorf("%s: %w", op, ErrNoActiveSignIn)
		case !slices.Contains(from, st.Step):
			err = fmt.Errorf("%s from %s: %w", op, st.Step, ErrIllegalTransition)
		case st.Loading:
			code = CodeRequestInFlight
		default:
			st.Loading = true
			st.gen++
			p = pending{gen: st.gen, sid: st.SignInID, st: cloneState(*st)}
		}
	})
	return p, code, err
}

func (s *SignIn) current(st *State, p pending) bool {
	return st.gen == p.gen && st.SignInID == p.sid
}

// end releases the loading flag if p still owns it.
func (s *SignIn) end(p pending) {
	s.session.Update(func(st *State) {
		if st.gen == p.gen {
			st.Loading = false
		}
	})
}

// finish applies fn and releases loading in one update. It reports false
// when the result was stale and dropped.
func (s *SignIn) finish(p pending, fn func(*State)) bool {
	applied := false
	s.session.Update(func(st *State) {
		if !s.current(st, p) {
			return
		}
		applied = true
		fn(st)
		st.Loading = false
	})
	return applied
}

// guard admits a token response for p.
func (s *SignIn) guard(p pending) func(*State) bool {
	return func(st *State) bool {
		if !s.current(st, p) {
			return false
		}
		st.Loading = false
		return true
	}
}

// fail records err under its field.
func (s *SignIn) fail(p pending, op string, err error) ErrorCode {
	code := CodeOf(err)
	if isCanceled(err) {
		s.log.Debug(op+" canceled", "code", code)
		return code
	}
	s.log.Info(op+" failed", "code", code)
	s.finish(p, func(st *State) { st.setError(code) })
	return code
}

// failAuth handles the error of a call that would have issued tokens.
func (s *SignIn) failAuth(p pending, op string, err error) ErrorCode {
	if CodeOf(err) != CodeMissingRequiredFields {
		return s.fail(p, op, err)
	}

	var apiErr *APIError
	var payload MissingFieldsPayload
	if !errors.As(err, &apiErr) || apiErr.Decode(&payload) != nil || s.client.validate.Struct(&payload) != nil {
		return s.fail(p, op, &SchemaError{Err: fmt.Errorf("missing_required_fields without field list")})
	}

	s.log.Info(op+" needs profile fields", "fields", payload.MissingFields)
	s.profile.Seed(payload.Values)
	s.finish(p, func(st *State) {
		st.enterStep(StepMissingFields)
		st.MissingRequiredFields = slices.Clone(payload.MissingFields)
	})
	return CodeMissingRequiredFields
}

func (s *SignIn) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// move is a transition without network traffic. It supersedes any
// in-flight call.
func (s *SignIn) move(op string, to Step, from ...Step) error {
	var err error
	s.session.Update(func(st *State) {
		if !slices.Contains(from, st.Step) {
			err = fmt.Errorf("%s from %s: %w", op, st.Step, ErrIllegalTransition)
			return
		}
		st.gen++
		st.Loading = false
		st.enterStep(to)
	})
	return err
}

// ============================================================================
// Email
// ============================================================================

// CreateSignIn starts a sign-in for email, running the login captcha first
// when it is enabled.
func (s *SignIn) CreateSignIn(ctx context.Context, email string) (ErrorCode, error) {
	const op = "create sign-in"
	email = strings.TrimSpace(email)

	p, code, err := s.begin(op, false, StepEmail)
	if code != "" || err != nil {
		return code, err
	}
	defer s.end(p)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var token, provider string
	res, err := s.gate.Execute(ctx, captcha.FeatureLogin)
	if err != nil {
		return s.fail(p, op, err), nil
	}
	if res != nil {
		token, provider = res.Token, string(res.Provider)
	}

	resp, err := s.client.CreateSignIn(ctx, email, token, provider)
	if err != nil {
		return s.fail(p, op, err), nil
	}
	if resp.Expired {
		s.finish(p, func(st *State) { st.setError(CodeSignInExpired) })
		return CodeSignInExpired, nil
	}

	if s.finish(p, func(st *State) {
		st.Email = resp.Email
		st.SignInID = resp.SID
		st.enterStep(StepVerification)
	}) {
		s.tokens.rememberSignIn(ctx, resp.SID)
	}
	return "", nil
}

// ShowConnectBrand opens the connect-brand screen from email.
func (s *SignIn) ShowConnectBrand() error {
	return s.move("show connect brand", StepConnectBrand, StepEmail)
}

// ============================================================================
// Method selection
// ============================================================================

// SelectPassword opens the password step.
func (s *SignIn) SelectPassword() error {
	return s.move("select password", StepPassword, StepVerification, StepResetPassword)
}

// SelectPasskey opens the passkey step. It requires a PasskeyAuthenticator.
func (s *SignIn) SelectPasskey() error {
	if s.passkeys == nil {
		return ErrNoPasskeys
	}
	return s.move("select passkey", StepPasskey, StepVerification)
}

// SelectMagicCode opens the magic code step without sending a code.
func (s *SignIn) SelectMagicCode() error {
	return s.move("select magic code", StepMagicCode, StepVerification)
}

// RequestResetPassword opens the reset-password step.
func (s *SignIn) RequestResetPassword() error {
	return s.move("request reset password", StepResetPassword, StepVerification, StepPassword)
}

// Back returns to the previous screen. Going back from verification
// abandons the sign-in.
func (s *SignIn) Back(ctx context.Context) error {
	switch s.session.Snapshot().Step {
	case StepVerification:
		return s.Restart(ctx)
	case StepConnectBrand:
		return s.move("back", StepEmail, StepConnectBrand)
	default:
		return s.move("back", StepVerification,
			StepPassword, StepMagicCode, StepPasskey, StepResetPassword)
	}
}

// Restart abandons the current sign-in and returns to email. It is how a
// caller recovers from sign_in_expired. Authenticated sessions end with
// Logout instead.
func (s *SignIn) Restart(ctx context.Context) error {
	var err error
	s.session.Update(func(st *State) {
		if st.Authenticated {
			err = fmt.Errorf("restart: %w", ErrIllegalTransition)
			return
		}
		st.resetSignIn()
	})
	if err != nil {
		return err
	}
	return s.tokens.forgetSignIn(ctx)
}

// ============================================================================
// Password
// ============================================================================

// SetPassword records the password being entered. It is held in State
// until the step is left.
func (s *SignIn) SetPassword(password string) error {
	var err error
	s.session.Update(func(st *State) {
		if st.Step != StepVerification && st.Step != StepPassword {
			err = fmt.Errorf("set password from %s: %w", st.Step, ErrIllegalTransition)
			return
		}
		st.Password = password
	})
	return err
}

// AuthenticateWithPassword verifies password for the active sign-in. An
// empty password submits the one recorded by SetPassword.
func (s *SignIn) AuthenticateWithPassword(ctx context.Context, password string) (ErrorCode, error) {
	const op = "password authentication"

	p, code, err := s.begin(op, true, StepVerification, StepPassword)
	if code != "" || err != nil {
		return code, err
	}
	defer s.end(p)

	if password == "" {
		password = p.st.Password
	} else {
		s.session.Update(func(st *State) {
			if s.current(st, p) {
				st.Password = password
			}
		})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.AuthenticateWithPassword(ctx, p.sid, password)
	if err != nil {
		return s.failAuth(p, op, err), nil
	}
	s.tokens.commit(ctx, *resp, s.guard(p))
	return "", nil
}

// SendResetPasswordEmail mails a reset link. Once sent, further calls
// succeed without contacting the service.
func (s *SignIn) SendResetPasswordEmail(ctx context.Context) (ErrorCode, error) {
	const op = "reset password email"

	if st := s.session.Snapshot(); st.Step == StepResetPassword && st.ResetPasswordStep == DeliverySent {
		return "", nil
	}

	p, code, err := s.begin(op, true, StepResetPassword)
	if code != "" || err != nil {
		return code, err
	}
	defer s.end(p)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.session.Update(func(st *State) {
		if s.current(st, p) {
			st.ResetPasswordStep = DeliveryRequested
		}
	})

	if err := s.client.SendResetPasswordEmail(ctx, p.sid); err != nil {
		s.session.Update(func(st *State) {
			if s.current(st, p) {
				st.ResetPasswordStep = DeliveryIdle
			}
		})
		return s.fail(p, op, err), nil
	}

	s.finish(p, func(st *State) {
		st.ResetPasswordStep = DeliverySent
		delete(st.Errors, GlobalField)
	})
	return "", nil
}

// ============================================================================
// Magic code
// ============================================================================

// SendMagicCode mails a one-time code and moves to the magic-code step.
// magic_code_recently_created also moves there, with the server's cooldown.
func (s *SignIn) SendMagicCode(ctx context.Context) (ErrorCode, error) {
	const op = "send magic code"

	p, code, err := s.begin(op, true, StepVerification, StepMagicCode)
	if code != "" || err != nil {
		return code, err
	}
	defer s.end(p)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.session.Update(func(st *State) {
		if s.current(st, p) {
			st.MagicCodeStep = DeliveryRequested
		}
	})

	resp, err := s.client.SendMagicCode(ctx, p.sid)
	if err == nil {
		s.finish(p, func(st *State) {
			st.enterStep(StepMagicCode)
			st.Errors = map[string]ErrorCode{}
			st.MagicCodeStep = DeliverySent
			st.MagicCodeResendAfter = time.Duration(resp.EnableResendAfter) * time.Second
		})
		return "", nil
	}

	code = CodeOf(err)
	var apiErr *APIError
	var cooldown MagicCodeResponse
	if code == CodeMagicCodeRecentlyCreated && errors.As(err, &apiErr) && apiErr.Decode(&cooldown) == nil {
		s.log.Info(op+" throttled", "resend_after", cooldown.EnableResendAfter)
		s.finish(p, func(st *State) {
			st.enterStep(StepMagicCode)
			st.MagicCodeStep = DeliverySent
			st.MagicCodeResendAfter = time.Duration(cooldown.EnableResendAfter) * time.Second
			st.setError(code)
		})
		return code, nil
	}

	prev := p.st.MagicCodeStep
	s.session.Update(func(st *State) {
		if s.current(st, p) {
			st.MagicCodeStep = prev
		}
	})
	return s.fail(p, op, err), nil
}

// AuthenticateWithMagicCode verifies a mailed code.
func (s *SignIn) AuthenticateWithMagicCode(ctx context.Context, code string) (ErrorCode, error) {
	const op = "magic code authentication"

	p, ec, err := s.begin(op, true, StepMagicCode, StepVerification)
	if ec != "" || err != nil {
		return ec, err
	}
	defer s.end(p)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.AuthenticateWithMagicCode(ctx, p.sid, strings.TrimSpace(code))
	if err != nil {
		return s.failAuth(p, op, err), nil
	}
	s.tokens.commit(ctx, *resp, s.guard(p))
	return "", nil
}

// ============================================================================
// Passkey
// ============================================================================

// AuthenticateWithPasskey runs a full assertion: fetch options, let the
// authenticator sign them, post the result.
func (s *SignIn) AuthenticateWithPasskey(ctx context.Context) (ErrorCode, error) {
	const op = "passkey authentication"

	if s.passkeys == nil {
		return "", ErrNoPasskeys
	}
	p, code, err := s.begin(op, true, StepPasskey, StepVerification)
	if code != "" || err != nil {
		return code, err
	}
	defer s.end(p)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	opts, err := s.client.PasskeyOptions(ctx, p.sid)
	if err != nil {
		return s.fail(p, op, err), nil
	}

	assertion, err := s.passkeys.GetAssertion(ctx, *opts)
	if err != nil {
		if isCanceled(err) {
			return s.fail(p, op, err), nil
		}
		s.log.Info(op+" rejected by authenticator", "error", err)
		s.finish(p, func(st *State) { st.setError(CodePasskeyRejected) })
		return CodePasskeyRejected, nil
	}

	resp, err := s.client.AuthenticateWithPasskey(ctx, p.sid, assertion)
	if err != nil {
		return s.failAuth(p, op, err), nil
	}
	s.tokens.commit(ctx, *resp, s.guard(p))
	return "", nil
}

// ============================================================================
// Missing fields
// ============================================================================

// SubmitMissingFields sends the profile values of exactly the missing fields.
func (s *SignIn) SubmitMissingFields(ctx context.Context) (ErrorCode, error) {
	const op = "submit missing fields"

	p, code, err := s.begin(op, true, StepMissingFields)
	if code != "" || err != nil {
		return code, err
	}
	defer s.end(p)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	payload := s.profile.BuildPayload(p.st.MissingRequiredFields)
	resp, err := s.client.UpdateMissingFields(ctx, p.sid, payload)
	if err != nil {
		return s.failAuth(p, op, err), nil
	}
	s.tokens.commit(ctx, *resp, s.guard(p))
	return "", nil
}
