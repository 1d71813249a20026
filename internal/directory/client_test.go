package directory_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassrename/hren/internal/directory"
	"github.com/hassrename/hren/internal/pattern"
	"github.com/hassrename/hren/internal/plan"
	"github.com/hassrename/hren/internal/testutil"
)

func newClient(t *testing.T, fake *testutil.FakeHA, token string) *directory.Client {
	t.Helper()
	client, err := directory.NewClient(directory.ClientConfig{
		BaseURL: fake.BaseURL(),
		Token:   token,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return client
}

func TestStates(t *testing.T) {
	fake := testutil.NewFakeHA(t).
		WithEntity("light.old_lamp", "Lamp").
		WithEntity("sun.sun", "").
		Start()

	entities, err := newClient(t, fake, fake.Token).States(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []plan.Entity{
		{Label: "Lamp", ID: "light.old_lamp"},
		{Label: "", ID: "sun.sun"},
	}, entities)
}

func TestStatesUnauthorized(t *testing.T) {
	fake := testutil.NewFakeHA(t).WithEntity("light.a", "A").Start()

	_, err := newClient(t, fake, "wrong").States(context.Background())
	var statusErr *directory.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestStatesServerError(t *testing.T) {
	fake := testutil.NewFakeHA(t).WithStatesStatus(http.StatusInternalServerError).Start()

	_, err := newClient(t, fake, fake.Token).States(context.Background())
	var statusErr *directory.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Error(), "boom")
}

func TestList(t *testing.T) {
	fake := testutil.NewFakeHA(t).
		WithEntity("light.old_lamp", "Lamp").
		WithEntity("switch.old_fan", "old").
		WithEntity("light.kitchen", "old kitchen light").
		Start()

	entities, err := newClient(t, fake, fake.Token).List(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, []plan.Entity{
		{Label: "Lamp", ID: "light.old_lamp"},
		{Label: "old", ID: "switch.old_fan"},
	}, entities, "labels must not be searched")
}

func TestListNoMatches(t *testing.T) {
	fake := testutil.NewFakeHA(t).WithEntity("light.a", "A").Start()

	_, err := newClient(t, fake, fake.Token).List(context.Background(), "^switch\\.")
	require.ErrorIs(t, err, directory.ErrNoEntities)
}

func TestListEmptyServer(t *testing.T) {
	fake := testutil.NewFakeHA(t).Start()

	_, err := newClient(t, fake, fake.Token).List(context.Background(), "")
	require.ErrorIs(t, err, directory.ErrNoEntities)
}

func TestFilter(t *testing.T) {
	entities := []plan.Entity{
		{Label: "Lamp", ID: "light.lamp"},
		{Label: "light", ID: "switch.a"},
		{Label: "", ID: "light.b"},
	}

	tests := []struct {
		name string
		expr string
		want []string
	}{
		{name: "empty keeps all", expr: "", want: []string{"light.lamp", "switch.a", "light.b"}},
		{name: "prefix", expr: `^light\.`, want: []string{"light.lamp", "light.b"}},
		{name: "unanchored", expr: "amp", want: []string{"light.lamp"}},
		{name: "none", expr: "zzz", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := directory.Filter(entities, tt.expr)
			require.NoError(t, err)
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestFilterInvalidPattern(t *testing.T) {
	_, err := directory.Filter([]plan.Entity{{ID: "light.a"}}, "(")
	var cfgErr *pattern.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected *pattern.ConfigError, got %v", err)
	assert.Equal(t, "search", cfgErr.Field)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := directory.NewClient(directory.ClientConfig{})
	require.Error(t, err)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://ha.local:8123", directory.BaseURL("ha.local:8123/", false))
	assert.Equal(t, "https://ha.local", directory.BaseURL("ha.local", true))
}
