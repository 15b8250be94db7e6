// Package idx generates the lexicographically sortable identifiers used for
// sign-in correlation ids, request ids and one-time login token ids.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the empty ID. It never identifies anything.
const Zero ID = ""

// ErrInvalid reports a malformed identifier.
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	globalOnce sync.Once
	global     *generator
)

// generator hands out ULIDs from a monotonic source so ids minted within the
// same millisecond still sort in creation order.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *generator) newAt(t time.Time) ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := ulid.MustNew(ulid.Timestamp(t), g.entropy)
	return ID(u.String())
}

func initGlobal() {
	global = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a new ID stamped with the current UTC time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt returns a new ID stamped with t. Handy for tests that need ordered ids.
func NewAt(t time.Time) ID {
	globalOnce.Do(initGlobal)
	return global.newAt(t)
}

// Prefixed returns a fresh ID prefixed with p and an underscore, e.g.
// "sia_01J...". The prefix makes ids in logs self-describing.
func Prefixed(p string) string {
	return p + "_" + New().String()
}

// Parse validates s as a bare ULID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}

	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}

	return ID(s), nil
}

// ParsePrefixed validates an id produced by Prefixed with the given prefix.
func ParsePrefixed(p, s string) (ID, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), p+"_")
	if !ok {
		return Zero, ErrInvalid
	}
	return Parse(rest)
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == Zero }

// String returns the canonical string form.
func (id ID) String() string { return string(id) }

// Time extracts the embedded timestamp. Zero or invalid ids give the zero time.
func (id ID) Time() time.Time {
	if id.IsZero() {
		return time.Time{}
	}

	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}

	return ulid.Time(u.Time())
}
