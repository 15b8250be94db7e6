package authctl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/passport/pkg/authsdk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrConsentDeclined is returned when the user answers no.
var ErrConsentDeclined = errors.New("consent declined")

func newConnectCommand(v *viper.Viper) *cobra.Command {
	var (
		scopes      []string
		redirectURI string
	)

	cmd := &cobra.Command{
		Use:   "connect <client-id>",
		Short: "Grant an application access and print its one-time login URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, v)
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.sdk.Tokens().IsAuthenticated(cmd.Context()) {
				return ErrNotSignedIn
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			p := newPrompter(cmd)
			consent := s.sdk.OAuth(authsdk.OAuthConfig{
				ClientID:    args[0],
				Scopes:      scopes,
				RedirectURI: redirectURI,
			})

			code, err := consent.Connect(ctx)
			if err != nil {
				return err
			}

			confirmed := false
			for round := 0; consent.State().Step == authsdk.ConsentRequired && round < maxFieldRounds; round++ {
				st := consent.State()
				if !confirmed {
					infoColor.Fprintf(out, "%s is requesting access", st.Application.Name)
					if len(st.Application.Scopes) > 0 {
						fmt.Fprintf(out, " to %s", strings.Join(st.Application.Scopes, ", "))
					}
					fmt.Fprintln(out)
				}

				for _, field := range st.MissingFields {
					input, err := p.ask(field)
					if err != nil {
						return err
					}
					cur, known := st.FieldValues[field]
					consent.SetFieldValue(field, fieldValue(cur, known, input))
				}

				if !confirmed {
					ok, err := p.confirm("Allow")
					if err != nil {
						return err
					}
					if !ok {
						consent.Cancel()
						return ErrConsentDeclined
					}
					confirmed = true
				}

				if code, err = consent.Submit(ctx); err != nil {
					return err
				}
			}
			if code != "" {
				return &CodeError{Op: "connect", Code: code}
			}

			target, err := consent.RedirectURL()
			if err != nil {
				return err
			}
			successColor.Fprintln(out, "Access granted. Open this URL to finish signing in:")
			fmt.Fprintln(out, target)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&scopes, "scope", "s", nil, "requested scopes")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "registered redirect uri (first registered when empty)")
	return cmd
}
