package authctl

import (
	"strings"
	"time"

	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func emailOf(token string) string {
	claims, err := jwtx.Decode(token)
	if err != nil {
		return "unknown"
	}
	return claims.Email
}

func newWhoamiCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the claims of the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, v)
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.sdk.Tokens().IsAuthenticated(cmd.Context()) {
				return ErrNotSignedIn
			}
			token, err := s.sdk.Tokens().GetToken(cmd.Context())
			if err != nil {
				return err
			}
			claims, err := jwtx.Decode(token)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Claim", "Value"})
			table.SetBorder(false)
			table.SetColumnSeparator("|")
			table.Append([]string{"Subject", claims.Subject})
			table.Append([]string{"Email", claims.Email})
			table.Append([]string{"Session", claims.SID})
			table.Append([]string{"Issuer", claims.Issuer})
			table.Append([]string{"Methods", strings.Join(claims.AMR, ", ")})
			if claims.ExpiresAt != nil {
				exp := claims.ExpiresAt.Time
				table.Append([]string{"Expires", exp.Local().Format(time.RFC3339) +
					" (in " + time.Until(exp).Round(time.Second).String() + ")"})
			}
			table.Render()
			return nil
		},
	}
}

func newRefreshCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the session token now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, v)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.sdk.Session().Snapshot().RefreshToken == "" {
				return ErrNotSignedIn
			}
			if code := s.sdk.Tokens().RefreshToken(cmd.Context()); code != "" {
				return &CodeError{Op: "refresh", Code: code}
			}

			claims, err := jwtx.Decode(s.sdk.Session().Snapshot().Token)
			if err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "Session refreshed, valid until %s\n",
				claims.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		},
	}
}

func newLogoutCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, v)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.sdk.Logout(cmd.Context()); err != nil {
				return err
			}
			successColor.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
