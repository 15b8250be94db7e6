package authctl

import (
	"context"
	"fmt"
	"io"

	"github.com/aussiebroadwan/passport/pkg/authsdk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	methodPassword  = "password"
	methodMagicCode = "magic-code"

	// maxFieldRounds bounds how often missing fields are asked for.
	maxFieldRounds = 3
)

func newSignInCommand(v *viper.Viper) *cobra.Command {
	var email, method string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with a password or a mailed code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, v)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if st := s.sdk.Session().Snapshot(); st.Authenticated {
				warningColor.Fprintf(out, "Already signed in as %s. Run logout first to switch accounts.\n", emailOf(st.Token))
				return nil
			}

			p := newPrompter(cmd)
			if email == "" {
				if email, err = p.ask("Email"); err != nil {
					return err
				}
			}
			return signIn(cmd.Context(), s.sdk, p, out, email, method)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email (prompted when empty)")
	cmd.Flags().StringVarP(&method, "method", "m", methodPassword, "password or magic-code")
	return cmd
}

func signIn(ctx context.Context, sdk *authsdk.SDK, p *prompter, out io.Writer, email, method string) error {
	si := sdk.SignIn()
	code, err := si.CreateSignIn(ctx, email)
	if err := check("create sign-in", code, err); err != nil {
		return err
	}

	switch method {
	case methodPassword:
		if err := si.SelectPassword(); err != nil {
			return err
		}
		password, err := p.secret("Password")
		if err != nil {
			return err
		}
		code, err = si.AuthenticateWithPassword(ctx, password)
		if err != nil {
			return err
		}
	case methodMagicCode:
		code, err = si.SendMagicCode(ctx)
		switch {
		case err != nil:
			return err
		case code == authsdk.CodeMagicCodeRecentlyCreated:
			warningColor.Fprintf(out, "A code was sent recently; use that one or retry in %s.\n",
				sdk.Session().Snapshot().MagicCodeResendAfter)
		case code != "":
			return &CodeError{Op: "send magic code", Code: code}
		default:
			infoColor.Fprintf(out, "A code was sent to %s.\n", email)
		}
		mailed, err := p.ask("Code")
		if err != nil {
			return err
		}
		code, err = si.AuthenticateWithMagicCode(ctx, mailed)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown sign-in method %q", method)
	}

	if code == authsdk.CodeMissingRequiredFields {
		code, err = fillMissingFields(ctx, sdk, p, out)
		if err != nil {
			return err
		}
	}
	if code != "" {
		return &CodeError{Op: "sign in", Code: code}
	}

	successColor.Fprintf(out, "Signed in as %s\n", sdk.Session().Snapshot().Email)
	return nil
}

// fillMissingFields prompts for each missing field and submits them until
// the service accepts the profile.
func fillMissingFields(ctx context.Context, sdk *authsdk.SDK, p *prompter, out io.Writer) (authsdk.ErrorCode, error) {
	code := authsdk.CodeMissingRequiredFields
	for range maxFieldRounds {
		missing := sdk.Session().Snapshot().MissingRequiredFields
		infoColor.Fprintf(out, "Your profile needs: %v\n", missing)

		for _, field := range missing {
			input, err := p.ask(field)
			if err != nil {
				return "", err
			}
			cur, known := sdk.Profile().Get(field)
			sdk.Profile().Set(field, fieldValue(cur, known, input))
		}

		var err error
		code, err = sdk.SignIn().SubmitMissingFields(ctx)
		if err != nil || code != authsdk.CodeMissingRequiredFields {
			return code, err
		}
	}
	return code, nil
}
