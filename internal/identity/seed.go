package identity

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aussiebroadwan/passport/pkg/captcha"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML document the service starts from.
type Seed struct {
	// RequiredFields must be set on a profile before a session is issued.
	RequiredFields []string       `yaml:"required_fields"`
	Captcha        captcha.Config `yaml:"captcha"`
	Users          []SeedUser     `yaml:"users"`
	Applications   []SeedApp      `yaml:"applications"`
}

type SeedUser struct {
	Email    string         `yaml:"email"`
	Password string         `yaml:"password"`
	Locked   bool           `yaml:"locked"`
	Profile  map[string]any `yaml:"profile"`
	Passkeys []SeedPasskey  `yaml:"passkeys"`
}

type SeedPasskey struct {
	ID string `yaml:"id"`
	// Secret is base64 (standard encoding).
	Secret string `yaml:"secret"`
}

type SeedApp struct {
	ClientID       string   `yaml:"client_id"`
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	LogoURL        string   `yaml:"logo_url"`
	Scopes         []string `yaml:"scopes"`
	RequiredFields []string `yaml:"required_fields"`
	RedirectURIs   []string `yaml:"redirect_uris"`
}

// DecodeSeed parses a seed document. Unknown keys are rejected.
func DecodeSeed(r io.Reader) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Seed{}, nil
		}
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return s, nil
}

// LoadSeedFile reads a seed document from path.
func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

func (p SeedPasskey) decode() (Passkey, error) {
	secret, err := base64.StdEncoding.DecodeString(p.Secret)
	if err != nil {
		return Passkey{}, fmt.Errorf("passkey %q: %w", p.ID, err)
	}
	return Passkey{ID: p.ID, Secret: secret}, nil
}

// normalizeValue coerces a decoded JSON or YAML value to a profile value:
// a string, a bool or a []string.
func normalizeValue(v any) (any, bool) {
	switch x := v.(type) {
	case string, bool:
		return x, true
	case []string:
		return append([]string{}, x...), true
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// isPresent reports whether a profile value counts as filled in.
func isPresent(v any) bool {
	switch x := v.(type) {
	case string:
		return x != ""
	case bool:
		return true
	case []string:
		return len(x) > 0
	}
	return false
}
