package testutil

import (
	"testing"
)

// Fake returns the server the env is wired to.
func (e *CLIEnv) Fake() *FakeHA {
	return e.fake
}

// AssertUpdateCount fails the test unless exactly n updates were received.
func (f *FakeHA) AssertUpdateCount(t testing.TB, n int) {
	t.Helper()
	if got := len(f.Updates()); got != n {
		t.Errorf("expected %d updates, got %d: %+v", n, got, f.Updates())
	}
}

// AssertUpdate checks update i (0-based). Empty newID or name assert the
// field was omitted from the request.
func (f *FakeHA) AssertUpdate(t testing.TB, i int, entityID, newID, name string) {
	t.Helper()
	updates := f.Updates()
	if i >= len(updates) {
		t.Fatalf("expected update %d, only %d received", i, len(updates))
	}
	u := updates[i]
	if u.ID != i+1 {
		t.Errorf("update %d: id = %d, want %d", i, u.ID, i+1)
	}
	if u.Type != "config/entity_registry/update" {
		t.Errorf("update %d: type = %q", i, u.Type)
	}
	if u.EntityID != entityID {
		t.Errorf("update %d: entity_id = %q, want %q", i, u.EntityID, entityID)
	}
	assertOptional(t, i, "new_entity_id", u.NewEntityID, newID)
	assertOptional(t, i, "name", u.Name, name)
}

func assertOptional(t testing.TB, i int, field string, got *string, want string) {
	t.Helper()
	switch {
	case want == "" && got != nil:
		t.Errorf("update %d: expected %s to be omitted, got %q", i, field, *got)
	case want != "" && got == nil:
		t.Errorf("update %d: expected %s=%q, field missing", i, field, want)
	case want != "" && *got != want:
		t.Errorf("update %d: %s = %q, want %q", i, field, *got, want)
	}
}

// AssertNoConnections fails the test if any WebSocket connection was opened.
func (f *FakeHA) AssertNoConnections(t testing.TB) {
	t.Helper()
	if n := f.Connections(); n != 0 {
		t.Errorf("expected no WebSocket connections, got %d", n)
	}
}

// AssertHasWarning checks that the result contains a warning with the given code.
func (r *CLIResult) AssertHasWarning(t *testing.T, code string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Code == code {
			return
		}
	}
	t.Errorf("expected warning with code %s, got warnings: %+v", code, r.Warnings)
}

// AssertResultCount checks that a list in Data has the expected length.
func (r *CLIResult) AssertResultCount(t *testing.T, key string, expected int) {
	t.Helper()
	results := r.DataList(key)
	if len(results) != expected {
		t.Errorf("expected %d %s, got %d\nRaw: %s", expected, key, len(results), r.RawJSON)
	}
}
