package identity

import (
	"slices"
	"time"

	"github.com/aussiebroadwan/passport/pkg/captcha"
)

// User is an account known to the service.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Locked       bool
	Profile      map[string]any
	Passkeys     []Passkey

	failedPasswords int
}

// Passkey is a registered credential. The reference service checks
// assertions as HMAC-SHA256(secret, challenge).
type Passkey struct {
	ID     string
	Secret []byte
}

// Application is a third-party client that asks for consent.
type Application struct {
	ClientID       string
	Name           string
	Description    string
	LogoURL        string
	Scopes         []string
	RequiredFields []string
	RedirectURIs   []string
}

func (a *Application) allowsRedirect(uri string) bool {
	return uri == "" || slices.Contains(a.RedirectURIs, uri)
}

type signIn struct {
	ID        string
	UserID    string
	ExpiresAt time.Time

	// verified is set once a credential check passed but profile fields
	// were still missing.
	verified bool
	amr      []string

	magicSecret string
	magicSentAt time.Time
	magicIssued map[string]time.Time
	magicUsed   map[string]bool

	passkeyChallenge string
	resetSent        bool
}

type refreshToken struct {
	SID       string
	UserID    string
	AMR       []string
	ExpiresAt time.Time
	Revoked   bool

	// Rotation bookkeeping: a reused token inside the grace window gets
	// the successor again instead of revoking the family.
	RotatedAt time.Time
	Successor string
}

type oneTimeToken struct {
	UserID      string
	ClientID    string
	RedirectURI string
	ExpiresAt   time.Time
	Used        bool
}

// ConsentStatus is the wire body of consent lookups.
type ConsentStatus struct {
	HasConsent     bool            `json:"has_consent"`
	RequiredFields []string        `json:"required_fields"`
	MissingFields  []string        `json:"missing_fields"`
	Application    ApplicationInfo `json:"application"`
	Values         map[string]any  `json:"values,omitempty"`
}

// ApplicationInfo is the public view of an Application.
type ApplicationInfo struct {
	ClientID    string   `json:"client_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	LogoURL     string   `json:"logo_url,omitempty"`
}

// TokenPair is issued on every successful authentication.
type TokenPair struct {
	JWT          string `json:"jwt"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// SignInInfo is returned when a sign-in is created.
type SignInInfo struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Email   string `json:"email"`
	Expired bool   `json:"expired"`
}

// PasskeyOptions are handed to the client authenticator.
type PasskeyOptions struct {
	Challenge        string   `json:"challenge"`
	RPID             string   `json:"rp_id"`
	AllowCredentials []string `json:"allow_credentials,omitempty"`
	TimeoutMS        int      `json:"timeout_ms,omitempty"`
}

// PublicConfig is served at /v1/config.
type PublicConfig struct {
	Captcha captcha.Config `json:"captcha"`
}
