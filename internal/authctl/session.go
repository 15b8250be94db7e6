package authctl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/passport/pkg/authsdk"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/aussiebroadwan/passport/pkg/tokenstore/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// session is an initialized SDK over the on-disk token store.
type session struct {
	sdk   *authsdk.SDK
	store *sqlite.Store
}

func openSession(cmd *cobra.Command, v *viper.Viper) (*session, error) {
	cfg := configFrom(v)
	logger := slogx.New(slogx.Config{
		Service: "authctl",
		Version: Version,
		Level:   cfg.LogLevel,
		Format:  "text",
		Output:  cmd.ErrOrStderr(),
	})

	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	store, err := sqlite.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	sdk, err := authsdk.New(authsdk.Config{
		BaseURL: cfg.BaseURL,
		Logger:  logger,
		Store:   store,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := sdk.Init(cmd.Context()); err != nil {
		sdk.Close()
		_ = store.Close()
		return nil, err
	}
	return &session{sdk: sdk, store: store}, nil
}

func (s *session) Close() {
	s.sdk.Close()
	_ = s.store.Close()
}
