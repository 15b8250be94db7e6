package authsdk_test

import (
	"encoding/json"
	"testing"

	"github.com/aussiebroadwan/passport/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func newProfile(t *testing.T) *authsdk.Profile {
	t.Helper()
	sdk, err := authsdk.New(authsdk.Config{BaseURL: "https://id.example.com"})
	require.NoError(t, err)
	t.Cleanup(sdk.Close)
	return sdk.Profile()
}

func TestValueFromJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    authsdk.Value
		wantErr bool
	}{
		{name: "string", raw: `"Ada"`, want: authsdk.StringValue("Ada")},
		{name: "null", raw: `null`, want: authsdk.StringValue("")},
		{name: "bool", raw: `true`, want: authsdk.BoolValue(true)},
		{name: "list", raw: `["a","b"]`, want: authsdk.ListValue("a", "b")},
		{name: "number", raw: `42`, wantErr: true},
		{name: "object", raw: `{"a":1}`, wantErr: true},
		{name: "mixed list", raw: `["a",1]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var raw any
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &raw))

			got, err := authsdk.ValueFromJSON(raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestProfileSeedKeepsUserInput(t *testing.T) {
	t.Parallel()

	p := newProfile(t)
	p.Set("name", authsdk.StringValue("Typed"))
	p.Seed(map[string]any{
		"name":       "Server",
		"newsletter": true,
		"age":        42.0,
	})

	name, _ := p.Get("name")
	require.Equal(t, authsdk.StringValue("Typed"), name)
	news, ok := p.Get("newsletter")
	require.True(t, ok)
	require.Equal(t, authsdk.BoolValue(true), news)
	_, ok = p.Get("age")
	require.False(t, ok)
}

func TestProfileBuildPayload(t *testing.T) {
	t.Parallel()

	p := newProfile(t)
	p.Set("name", authsdk.StringValue("Ada"))
	p.Set("tags", authsdk.ListValue("x"))
	p.Set("extra", authsdk.StringValue("ignored"))

	got := p.BuildPayload([]string{"name", "tags", "country"})
	require.Equal(t, map[string]any{
		"name":    "Ada",
		"tags":    []string{"x"},
		"country": "",
	}, got)
}

func TestProfileApplyIsAllOrNothing(t *testing.T) {
	t.Parallel()

	p := newProfile(t)
	require.Error(t, p.Apply(map[string]any{"name": "Ada", "age": 3.0}))
	_, ok := p.Get("name")
	require.False(t, ok)

	require.NoError(t, p.Apply(map[string]any{"name": "Ada", "newsletter": false}))
	news, _ := p.Get("newsletter")
	require.Equal(t, authsdk.BoolValue(false), news)

	var changed [][]string
	unsubscribe := p.OnAny(func(_ authsdk.ProfileData, keys []string) { changed = append(changed, keys) })
	defer unsubscribe()
	p.Reset()
	require.Len(t, changed, 1)
	require.ElementsMatch(t, []string{"name", "newsletter"}, changed[0])
}
