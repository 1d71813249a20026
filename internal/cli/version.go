package cli

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hassrename/hren/internal/buildinfo"
	"github.com/hassrename/hren/internal/session"
)

const defaultModulePath = "github.com/hassrename/hren"

type versionInfo struct {
	Version    string `json:"version"`
	ModulePath string `json:"module_path"`
	Commit     string `json:"commit,omitempty"`
	CommitTime string `json:"commit_time,omitempty"`
	Modified   bool   `json:"modified"`
	GoVersion  string `json:"go_version"`
	GOOS       string `json:"goos"`
	GOARCH     string `json:"goarch"`

	// Filled in by --server.
	Server        string `json:"server,omitempty"`
	ServerVersion string `json:"server_version,omitempty"`
}

var versionServer bool

var readBuildInfo = debug.ReadBuildInfo

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show hren version and build information",
	Args:  cobra.NoArgs,
	Long: `Show hren version and build information.

With --server, also connect to the configured Home Assistant instance,
authenticate, and report the version it announces.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersionInfo()

		if versionServer {
			loaded, err := loadGlobalConfig()
			if err != nil {
				return handleError(ErrConfigInvalid, err, "")
			}
			conn, err := resolveConnection(loaded)
			if err != nil {
				return handleError(errorCode(err), err, connectionSuggestion(err))
			}
			version, err := probeServerVersion(cmd.Context(), conn)
			if err != nil {
				return handleError(errorCode(err), err, "")
			}
			info.Server = conn.host
			info.ServerVersion = version
		}

		if isJSONOutput() {
			outputSuccess(info, nil)
			return nil
		}

		fmt.Printf("hren %s\n", info.Version)
		fmt.Printf("module: %s\n", info.ModulePath)
		if info.Commit != "" {
			fmt.Printf("commit: %s\n", info.Commit)
		}
		if info.CommitTime != "" {
			fmt.Printf("commit_time: %s\n", info.CommitTime)
		}
		fmt.Printf("go: %s\n", info.GoVersion)
		fmt.Printf("platform: %s/%s\n", info.GOOS, info.GOARCH)
		fmt.Printf("modified: %t\n", info.Modified)
		if info.Server != "" {
			serverVersion := info.ServerVersion
			if serverVersion == "" {
				serverVersion = "unknown"
			}
			fmt.Printf("home_assistant: %s (%s)\n", serverVersion, info.Server)
		}

		return nil
	},
}

// probeServerVersion authenticates without sending any update.
func probeServerVersion(ctx context.Context, conn connection) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := session.Dial(ctx, session.Config{
		URL:          session.URL(conn.host, conn.tls),
		Token:        conn.token,
		ReplyTimeout: conn.timeout,
		Logger:       logger,
	})
	if err != nil {
		return "", err
	}
	defer s.Close()

	if err := s.Authenticate(ctx); err != nil {
		return "", err
	}
	return s.ServerVersion(), nil
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:    "devel",
		ModulePath: defaultModulePath,
		GoVersion:  runtime.Version(),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
	}

	buildInfo, ok := readBuildInfo()
	if !ok || buildInfo == nil {
		applyLdflagsFallback(&info)
		return info
	}

	if buildInfo.Main.Path != "" {
		info.ModulePath = buildInfo.Main.Path
	}
	info.Version = normalizeVersion(buildInfo.Main.Version)

	if buildInfo.GoVersion != "" {
		info.GoVersion = buildInfo.GoVersion
	}

	if val := buildSetting(buildInfo, "GOOS"); val != "" {
		info.GOOS = val
	}
	if val := buildSetting(buildInfo, "GOARCH"); val != "" {
		info.GOARCH = val
	}

	info.Commit = buildSetting(buildInfo, "vcs.revision")
	info.CommitTime = buildSetting(buildInfo, "vcs.time")
	info.Modified = strings.EqualFold(buildSetting(buildInfo, "vcs.modified"), "true")
	applyLdflagsFallback(&info)

	return info
}

func normalizeVersion(version string) string {
	if version == "" || version == "(devel)" {
		return "devel"
	}
	return version
}

func buildSetting(info *debug.BuildInfo, key string) string {
	if info == nil {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func applyLdflagsFallback(info *versionInfo) {
	if info == nil {
		return
	}

	if info.Version == "devel" && buildinfo.Version != "" {
		info.Version = normalizeVersion(buildinfo.Version)
	}
	if info.Commit == "" && buildinfo.Commit != "" {
		info.Commit = buildinfo.Commit
	}
	if info.CommitTime == "" && buildinfo.Date != "" {
		info.CommitTime = buildinfo.Date
	}
}

func init() {
	versionCmd.Flags().BoolVar(&versionServer, "server", false, "Also report the Home Assistant version")
	rootCmd.AddCommand(versionCmd)
}
