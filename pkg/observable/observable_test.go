package observable_test

import (
	"maps"
	"sync"
	"testing"

	"github.com/aussiebroadwan/passport/pkg/observable"
	"github.com/stretchr/testify/require"
)

type state struct {
	Step   string
	Count  int
	Errors map[string]string
}

func diff(a, b state) []string {
	var keys []string
	if a.Step != b.Step {
		keys = append(keys, "step")
	}
	if a.Count != b.Count {
		keys = append(keys, "count")
	}
	if !maps.Equal(a.Errors, b.Errors) {
		keys = append(keys, "errors")
	}
	return keys
}

func clone(s state) state {
	s.Errors = maps.Clone(s.Errors)
	return s
}

func TestUpdateNotifiesChangedKeysOnly(t *testing.T) {
	t.Parallel()

	rec := observable.New(state{Step: "email"}, diff, clone)

	var steps, counts int
	rec.OnChange("step", func(s state) { steps++ })
	rec.OnChange("count", func(s state) { counts++ })

	changed := rec.Update(func(s *state) { s.Step = "verification" })
	require.Equal(t, []string{"step"}, changed)
	require.Equal(t, 1, steps)
	require.Equal(t, 0, counts)

	// No-op update notifies nobody.
	require.Empty(t, rec.Update(func(s *state) { s.Step = "verification" }))
	require.Equal(t, 1, steps)
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	rec := observable.New(state{}, diff, clone)

	calls := 0
	unsub := rec.OnChange("count", func(state) { calls++ })
	rec.Update(func(s *state) { s.Count++ })
	unsub()
	unsub()
	rec.Update(func(s *state) { s.Count++ })

	require.Equal(t, 1, calls)
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	rec := observable.New(state{Errors: map[string]string{}}, diff, clone)
	rec.Update(func(s *state) { s.Errors["global"] = "boom" })

	snap := rec.Snapshot()
	snap.Errors["global"] = "mutated"

	require.Equal(t, "boom", rec.Snapshot().Errors["global"])
}

func TestCallbackMayReenter(t *testing.T) {
	t.Parallel()

	rec := observable.New(state{}, diff, clone)
	rec.OnChange("step", func(s state) {
		if s.Step == "a" {
			rec.Update(func(s *state) { s.Count = 42 })
		}
	})

	rec.Update(func(s *state) { s.Step = "a" })
	require.Equal(t, 42, rec.Snapshot().Count)
}

func TestConcurrentUpdatesNotifyInCommitOrder(t *testing.T) {
	t.Parallel()

	rec := observable.New(state{}, diff, clone)

	entered := make(chan struct{})
	release := make(chan struct{})
	rec.OnChange("count", func(s state) {
		if s.Count == 1 {
			close(entered)
			<-release
		}
	})

	var mu sync.Mutex
	var seen []int
	rec.OnChange("count", func(s state) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Count)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Update(func(s *state) { s.Count = 1 })
	}()
	<-entered

	// Committed while the first notification is still being delivered.
	rec.Update(func(s *state) { s.Count = 2 })
	close(release)
	<-done

	require.Equal(t, 2, rec.Snapshot().Count)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2}, seen)
}

func TestReentrantUpdateNotifiesAfterCurrentRound(t *testing.T) {
	t.Parallel()

	rec := observable.New(state{}, diff, clone)

	var order []string
	rec.OnChange("step", func(s state) {
		order = append(order, "first:"+s.Step)
		if s.Step == "a" {
			rec.Update(func(s *state) { s.Step = "b" })
		}
	})
	rec.OnChange("step", func(s state) { order = append(order, "second:"+s.Step) })

	rec.Update(func(s *state) { s.Step = "a" })
	require.Equal(t, []string{"first:a", "second:a", "first:b", "second:b"}, order)
}

func TestOnAnyAndClose(t *testing.T) {
	t.Parallel()

	rec := observable.New(state{}, diff, clone)

	var got [][]string
	rec.OnAny(func(_ state, keys []string) { got = append(got, keys) })

	rec.Update(func(s *state) { s.Step = "x"; s.Count = 1 })
	require.Equal(t, [][]string{{"step", "count"}}, got)

	rec.Close()
	rec.Update(func(s *state) { s.Count = 2 })
	require.Len(t, got, 1)
	require.Equal(t, 2, rec.Snapshot().Count)
}
