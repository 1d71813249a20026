package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hassrename/hren/internal/testutil"
)

var captureStdoutMu sync.Mutex

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	captureStdoutMu.Lock()
	defer captureStdoutMu.Unlock()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	os.Stdout = w

	outputCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		var buf bytes.Buffer
		_, copyErr := io.Copy(&buf, r)
		_ = r.Close()
		if copyErr != nil {
			errCh <- copyErr
			return
		}
		outputCh <- buf.String()
	}()

	fn()

	os.Stdout = orig
	_ = w.Close()
	select {
	case err := <-errCh:
		t.Fatalf("io.Copy: %v", err)
		return ""
	case output := <-outputCh:
		return output
	}
}

// resetFlagsForTest puts every flag in the command tree back to its default.
func resetFlagsForTest(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlagsForTest(sub)
	}
}

// writeTestConfig writes a config.toml pointing at fake and returns its path.
func writeTestConfig(t *testing.T, fake *testutil.FakeHA) string {
	t.Helper()
	env := testutil.NewCLIEnv(t, fake)
	return env.ConfigPath
}

// executeForTest runs the command tree in-process and returns stdout.
func executeForTest(t *testing.T, args ...string) (string, error) {
	t.Helper()

	prevCfg := cfg
	t.Cleanup(func() {
		cfg = prevCfg
		resetFlagsForTest(rootCmd)
		rootCmd.SetArgs(nil)
	})
	resetFlagsForTest(rootCmd)
	cfg = nil

	var runErr error
	out := captureStdout(t, func() {
		rootCmd.SetArgs(args)
		runErr = rootCmd.ExecuteContext(context.Background())
	})
	return out, runErr
}

type testResponse struct {
	OK       bool            `json:"ok"`
	Data     json.RawMessage `json:"data"`
	Error    *ErrorInfo      `json:"error"`
	Warnings []Warning       `json:"warnings"`
	Meta     *Meta           `json:"meta"`
}

// executeJSONForTest runs args with --json and decodes the envelope.
func executeJSONForTest(t *testing.T, configFile string, args ...string) testResponse {
	t.Helper()
	full := append([]string{"--config", configFile, "--json"}, args...)
	out, err := executeForTest(t, full...)
	if err != nil {
		t.Fatalf("execute %v: %v\noutput: %s", args, err, out)
	}
	var resp testResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("expected JSON output, got parse error: %v; out=%s", err, out)
	}
	return resp
}

func tempPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}
