package identity

import (
	"context"
	"sync"
)

// Outbox delivers the emails the service sends.
type Outbox interface {
	SendMagicCode(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, sid string) error
}

// Message is one delivered email.
type Message struct {
	Kind  string `json:"kind"`
	Email string `json:"email"`
	Code  string `json:"code,omitempty"`
}

// MemoryOutbox keeps delivered messages for tests and the dev server.
type MemoryOutbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (o *MemoryOutbox) SendMagicCode(_ context.Context, email, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, Message{Kind: "magic_code", Email: email, Code: code})
	return nil
}

func (o *MemoryOutbox) SendPasswordReset(_ context.Context, email, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, Message{Kind: "reset_password", Email: email})
	return nil
}

// LastMagicCode returns the latest code mailed to email.
func (o *MemoryOutbox) LastMagicCode(email string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if m := o.msgs[i]; m.Kind == "magic_code" && m.Email == email {
			return m.Code, true
		}
	}
	return "", false
}

// Messages returns every message sent to email, oldest first.
func (o *MemoryOutbox) Messages(email string) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Message
	for _, m := range o.msgs {
		if m.Email == email {
			out = append(out, m)
		}
	}
	return out
}
