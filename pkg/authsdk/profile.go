package authsdk

import (
	"fmt"
	"maps"
	"slices"

	"github.com/aussiebroadwan/passport/pkg/observable"
)

// ValueKind is the shape of a profile field value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindList
)

// Value is a profile field value: a string, a boolean or a list of strings.
type Value struct {
	Kind ValueKind
	Str  string
	Bool bool
	List []string
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func ListValue(l ...string) Value { return Value{Kind: KindList, List: slices.Clone(l)} }

func (v Value) clone() Value {
	v.List = slices.Clone(v.List)
	return v
}

func (v Value) equal(o Value) bool {
	return v.Kind == o.Kind && v.Str == o.Str && v.Bool == o.Bool && slices.Equal(v.List, o.List)
}

// JSON returns v in its wire form.
func (v Value) JSON() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindList:
		if v.List == nil {
			return []string{}
		}
		return slices.Clone(v.List)
	default:
		return v.Str
	}
}

// ValueFromJSON converts a decoded JSON value. Numbers and objects are not
// profile values.
func ValueFromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return StringValue(""), nil
	case string:
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case []string:
		return ListValue(x...), nil
	case []any:
		l := make([]string, 0, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return Value{}, fmt.Errorf("list element %d: unsupported type %T", i, e)
			}
			l = append(l, s)
		}
		return Value{Kind: KindList, List: l}, nil
	}
	return Value{}, fmt.Errorf("unsupported type %T", raw)
}

// ProfileData maps field names to values.
type ProfileData map[string]Value

func cloneProfile(d ProfileData) ProfileData {
	out := make(ProfileData, len(d))
	for k, v := range d {
		out[k] = v.clone()
	}
	return out
}

func diffProfile(a, b ProfileData) []string {
	var keys []string
	for k, v := range b {
		if old, ok := a[k]; !ok || !old.equal(v) {
			keys = append(keys, k)
		}
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Profile is the shared, observable field data the missing-fields step and
// consent screens render inputs from.
type Profile struct {
	*observable.Record[ProfileData, string]
}

func newProfile() *Profile {
	return &Profile{observable.New(ProfileData{}, diffProfile, cloneProfile)}
}

// Get returns the value of field.
func (p *Profile) Get(field string) (Value, bool) {
	v, ok := p.Snapshot()[field]
	return v, ok
}

// Set stores a value for field.
func (p *Profile) Set(field string, v Value) {
	p.Update(func(d *ProfileData) { (*d)[field] = v.clone() })
}

// Seed merges server-provided values, deep-copied, without overwriting what
// the user has already typed. Unconvertible values are skipped.
func (p *Profile) Seed(values map[string]any) {
	if len(values) == 0 {
		return
	}
	p.Update(func(d *ProfileData) {
		for k, raw := range values {
			if _, ok := (*d)[k]; ok {
				continue
			}
			if v, err := ValueFromJSON(raw); err == nil {
				(*d)[k] = v
			}
		}
	})
}

// BuildPayload returns the wire form of exactly fields. Fields without a
// value are sent as empty strings so the server reports them.
func (p *Profile) BuildPayload(fields []string) map[string]any {
	d := p.Snapshot()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = d[f].JSON()
	}
	return out
}

// Apply stores every entry of payload. It fails without changing anything
// when an entry cannot be converted.
func (p *Profile) Apply(payload map[string]any) error {
	vals := make(ProfileData, len(payload))
	for k, raw := range payload {
		v, err := ValueFromJSON(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		vals[k] = v
	}
	p.Update(func(d *ProfileData) { maps.Copy(*d, vals) })
	return nil
}

// Reset drops all values.
func (p *Profile) Reset() {
	p.Update(func(d *ProfileData) { *d = ProfileData{} })
}
