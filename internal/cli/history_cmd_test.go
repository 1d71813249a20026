package cli

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassrename/hren/internal/mappingfile"
	"github.com/hassrename/hren/internal/plan"
	"github.com/hassrename/hren/internal/testutil"
)

func TestHistoryListShowExport(t *testing.T) {
	fake := testutil.NewFakeHA(t).
		WithEntity("light.old_a", "A").
		WithEntity("light.old_b", "B").
		Start()
	configFile := writeTestConfig(t, fake)

	resp := executeJSONForTest(t, configFile, "rename", "-s", `^light\.old_`, "-r", "light.new_", "-y")
	require.True(t, resp.OK, "error: %+v", resp.Error)
	runID := decodeRename(t, resp).RunID
	require.Positive(t, runID)

	resp = executeJSONForTest(t, configFile, "history", "list")
	require.True(t, resp.OK, "error: %+v", resp.Error)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 1, resp.Meta.Count)

	resp = executeJSONForTest(t, configFile, "history", "show", "1")
	require.True(t, resp.OK, "error: %+v", resp.Error)
	var run struct {
		Planned  int `json:"planned"`
		Outcomes []struct {
			ID    string `json:"entity_id"`
			NewID string `json:"new_entity_id"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, 2, run.Planned)
	require.Len(t, run.Outcomes, 2)
	assert.Equal(t, "light.old_a", run.Outcomes[0].ID)

	undo := tempPath(t, "undo.yaml")
	resp = executeJSONForTest(t, configFile, "history", "export", "1", "--reverse", "-o", undo)
	require.True(t, resp.OK, "error: %+v", resp.Error)

	rows, err := mappingfile.Read(undo)
	require.NoError(t, err)
	assert.Equal(t, []plan.MappingRow{
		{Label: "B", ID: "light.new_b", NewID: "light.old_b"},
		{Label: "A", ID: "light.new_a", NewID: "light.old_a"},
	}, rows)
}

func TestHistoryShowUnknownRun(t *testing.T) {
	fake := testutil.NewFakeHA(t).WithEntity("light.old_a", "A").Start()
	configFile := writeTestConfig(t, fake)

	resp := executeJSONForTest(t, configFile, "rename", "-s", "old_", "-r", "new_", "-y")
	require.True(t, resp.OK, "error: %+v", resp.Error)

	resp = executeJSONForTest(t, configFile, "history", "show", "42")
	require.False(t, resp.OK)
	assert.Equal(t, ErrRunNotFound, resp.Error.Code)

	resp = executeJSONForTest(t, configFile, "history", "show", "abc")
	require.False(t, resp.OK)
	assert.Equal(t, ErrInvalidInput, resp.Error.Code)
}

func TestHistoryEmptyLedger(t *testing.T) {
	fake := testutil.NewFakeHA(t).Start()
	configFile := writeTestConfig(t, fake)

	resp := executeJSONForTest(t, configFile, "history", "list")
	require.False(t, resp.OK)
	assert.Equal(t, ErrRunNotFound, resp.Error.Code)
}

func TestHistoryExportToStdout(t *testing.T) {
	fake := testutil.NewFakeHA(t).WithEntity("switch.old_fan", "Fan").Start()
	configFile := writeTestConfig(t, fake)

	resp := executeJSONForTest(t, configFile, "rename", "-s", "old_", "-r", "new_", "-y")
	require.True(t, resp.OK, "error: %+v", resp.Error)

	out, err := executeForTest(t, "--config", configFile, "history", "export", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Friendly Name,Current Entity ID,New Entity ID", lines[0])
	assert.Equal(t, "Fan,switch.old_fan,switch.new_fan", lines[1])
}

func TestHistoryDisabled(t *testing.T) {
	fake := testutil.NewFakeHA(t).WithEntity("switch.old_fan", "Fan").Start()
	env := testutil.NewCLIEnv(t, fake)
	content, err := os.ReadFile(env.ConfigPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(env.ConfigPath, append(content, []byte("history = false\n")...), 0o600))

	resp := executeJSONForTest(t, env.ConfigPath, "rename", "-s", "old_", "-r", "new_", "-y")
	require.True(t, resp.OK, "error: %+v", resp.Error)
	assert.Zero(t, decodeRename(t, resp).RunID)

	_, err = os.Stat(env.Path("history.db"))
	assert.True(t, os.IsNotExist(err), "history.db should not be created")

	resp = executeJSONForTest(t, env.ConfigPath, "history", "list")
	require.False(t, resp.OK)
	assert.Equal(t, ErrConfigInvalid, resp.Error.Code)
}

func TestHistoryExportReverseRestoresLabels(t *testing.T) {
	fake := testutil.NewFakeHA(t).
		WithEntity("light.old_a", "A").
		WithEntity("light.old_b", "B").
		Start()
	configFile := writeTestConfig(t, fake)

	resp := executeJSONForTest(t, configFile, "rename", "-s", `^light\.old_`, "-r", "light.new_",
		"--name-search", "^", "--name-replace", "Hall ", "-y")
	require.True(t, resp.OK, "error: %+v", resp.Error)

	undo := tempPath(t, "undo.csv")
	resp = executeJSONForTest(t, configFile, "history", "export", "1", "--reverse", "-o", undo)
	require.True(t, resp.OK, "error: %+v", resp.Error)

	resp = executeJSONForTest(t, configFile, "rename", "-i", undo, "-y")
	require.True(t, resp.OK, "error: %+v", resp.Error)

	updates := fake.Updates()
	require.Len(t, updates, 4)
	for i, want := range []struct{ id, newID, name string }{
		{"light.new_b", "light.old_b", "B"},
		{"light.new_a", "light.old_a", "A"},
	} {
		u := updates[2+i]
		assert.Equal(t, want.id, u.EntityID)
		require.NotNil(t, u.NewEntityID)
		assert.Equal(t, want.newID, *u.NewEntityID)
		require.NotNil(t, u.Name)
		assert.Equal(t, want.name, *u.Name, "undo restores the original friendly name")
	}
}
