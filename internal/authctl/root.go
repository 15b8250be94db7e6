// Package authctl is a terminal client for a passport identity service. It
// drives the SDK state machines from prompts and keeps tokens in SQLite.
package authctl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

// Config is the resolved CLI configuration.
type Config struct {
	BaseURL   string
	StorePath string
	LogLevel  string
}

func configFrom(v *viper.Viper) Config {
	return Config{
		BaseURL:   v.GetString("base_url"),
		StorePath: v.GetString("store"),
		LogLevel:  v.GetString("log_level"),
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "authctl.db"
	}
	return filepath.Join(dir, "authctl", "tokens.db")
}

// NewRootCommand builds the command tree. Flags can also be set through
// AUTHCTL_BASE_URL, AUTHCTL_STORE and AUTHCTL_LOG_LEVEL.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AUTHCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Sign in to a passport identity service from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}

	flags := root.PersistentFlags()
	flags.String("base-url", "http://localhost:8080", "identity service base url")
	flags.String("store", defaultStorePath(), "path of the sqlite token store")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("base_url", flags.Lookup("base-url"))
	_ = v.BindPFlag("store", flags.Lookup("store"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		newSignInCommand(v),
		newWhoamiCommand(v),
		newRefreshCommand(v),
		newConnectCommand(v),
		newLogoutCommand(v),
		newVersionCommand(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		printError(root.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the authctl version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
