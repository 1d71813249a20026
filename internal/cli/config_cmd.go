package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hassrename/hren/internal/config"
	"github.com/hassrename/hren/internal/ui"
)

type globalConfigContext struct {
	cfg          *config.Config
	configPath   string
	configExists bool
}

var (
	configSetHost         string
	configSetTLS          bool
	configSetTokenPrompt  bool
	configSetReplyTimeout string
	configSetAccent       string

	// readSecret is swapped out in tests.
	readSecret = ui.ReadSecret
)

func loadGlobalConfigContextAllowMissing() (*globalConfigContext, error) {
	resolvedPath := config.ResolveConfigPath(configPath)
	_, statErr := os.Stat(resolvedPath)
	if statErr != nil && !os.IsNotExist(statErr) {
		return nil, statErr
	}

	loadedCfg, err := config.Load(resolvedPath)
	if err != nil {
		return nil, err
	}

	return &globalConfigContext{
		cfg:          loadedCfg,
		configPath:   resolvedPath,
		configExists: statErr == nil,
	}, nil
}

// maskToken keeps enough of a token to recognize it.
func maskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

func configData(ctx *globalConfigContext) map[string]interface{} {
	return map[string]interface{}{
		"config_path":   ctx.configPath,
		"exists":        ctx.configExists,
		"host":          strings.TrimSpace(ctx.cfg.Host),
		"tls":           ctx.cfg.TLS,
		"access_token":  maskToken(ctx.cfg.AccessToken),
		"token_file":    strings.TrimSpace(ctx.cfg.TokenFile),
		"reply_timeout": strings.TrimSpace(ctx.cfg.ReplyTimeout),
		"history":       ctx.cfg.HistoryEnabled(),
		"history_db":    ctx.cfg.HistoryPath(),
		"ui": map[string]interface{}{
			"accent": strings.TrimSpace(ctx.cfg.UI.Accent),
		},
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	ctx, err := loadGlobalConfigContextAllowMissing()
	if err != nil {
		return handleError(ErrConfigInvalid, err, "")
	}

	if isJSONOutput() {
		outputSuccess(configData(ctx), nil)
		return nil
	}

	if !ctx.configExists {
		fmt.Printf("Config file does not exist: %s\n", ctx.configPath)
		fmt.Println("Run 'hren config init' to create it.")
		return nil
	}

	fmt.Printf("config: %s\n", ctx.configPath)
	if v := strings.TrimSpace(ctx.cfg.Host); v != "" {
		fmt.Printf("host: %s\n", v)
	}
	fmt.Printf("tls: %t\n", ctx.cfg.TLS)
	if v := maskToken(ctx.cfg.AccessToken); v != "" {
		fmt.Printf("access_token: %s\n", v)
	}
	if v := strings.TrimSpace(ctx.cfg.TokenFile); v != "" {
		fmt.Printf("token_file: %s\n", v)
	}
	if v := strings.TrimSpace(ctx.cfg.ReplyTimeout); v != "" {
		fmt.Printf("reply_timeout: %s\n", v)
	}
	fmt.Printf("history: %t\n", ctx.cfg.HistoryEnabled())
	if ctx.cfg.HistoryEnabled() {
		fmt.Printf("history_db: %s\n", ctx.cfg.HistoryPath())
	}
	if v := strings.TrimSpace(ctx.cfg.UI.Accent); v != "" {
		fmt.Printf("ui.accent: %s\n", v)
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hren config.toml settings",
	Long: `Manage hren config.toml settings.

Use this to initialize, inspect, and edit the Home Assistant connection
settings. HASS_HOST, HASS_TOKEN and HASS_TLS override the file at runtime.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default config.toml if missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetPath := config.ResolveConfigPath(configPath)

		created, err := config.CreateDefault(targetPath)
		if err != nil {
			return handleError(ErrFileWriteError, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"config_path": targetPath,
				"created":     created,
			}, nil)
			return nil
		}

		if created {
			fmt.Printf("Created config: %s\n", targetPath)
		} else {
			fmt.Printf("Config already exists: %s\n", targetPath)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key value]...",
	Short: "Set one or more config.toml fields",
	Long: `Set one or more config.toml fields.

Fields can be given as flags or as key/value pairs:

  hren config set --host homeassistant.local:8123 --token-prompt
  hren config set reply_timeout 1m history false`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args)%2 != 0 {
			return fmt.Errorf("expected key/value pairs, got %d arguments", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := loadGlobalConfigContextAllowMissing()
		if err != nil {
			return handleError(ErrConfigInvalid, err, "")
		}

		changed := make([]string, 0, 6)
		set := func(key, value string) error {
			if err := ctx.cfg.Set(key, value); err != nil {
				return err
			}
			changed = append(changed, key)
			return nil
		}

		if cmd.Flags().Changed("host") {
			value := strings.TrimSpace(configSetHost)
			if value == "" {
				return handleErrorMsg(ErrInvalidInput, "host cannot be empty", "")
			}
			_ = set("host", value)
		}
		if cmd.Flags().Changed("tls") {
			_ = set("tls", fmt.Sprint(configSetTLS))
		}
		if cmd.Flags().Changed("reply-timeout") {
			if err := set("reply_timeout", strings.TrimSpace(configSetReplyTimeout)); err != nil {
				return handleError(ErrInvalidInput, err, "Use a Go duration such as 30s or 2m")
			}
		}
		if cmd.Flags().Changed("accent") {
			value := strings.TrimSpace(configSetAccent)
			if value == "" {
				return handleErrorMsg(ErrInvalidInput, "accent cannot be empty", "")
			}
			_ = set("ui.accent", value)
		}
		for i := 0; i < len(args); i += 2 {
			if err := set(args[i], args[i+1]); err != nil {
				return handleError(ErrInvalidInput, err, "")
			}
		}
		if configSetTokenPrompt {
			if isJSONOutput() {
				return handleErrorMsg(ErrInvalidInput, "--token-prompt needs a terminal", "Set access_token as a key/value pair instead")
			}
			token, err := readSecret("Access token: ")
			if err != nil {
				return handleError(ErrInvalidInput, err, "")
			}
			if token == "" {
				return handleErrorMsg(ErrInvalidInput, "access token cannot be empty", "")
			}
			_ = set("access_token", token)
		}

		if len(changed) == 0 {
			return handleErrorMsg(ErrMissingArgument, "no fields provided; pass a flag or key/value pairs", "Valid keys: "+strings.Join(config.Keys(), ", "))
		}

		if err := config.SaveTo(ctx.configPath, ctx.cfg); err != nil {
			return handleError(ErrFileWriteError, err, "")
		}

		ctx.configExists = true
		if isJSONOutput() {
			data := configData(ctx)
			data["changed"] = changed
			outputSuccess(data, nil)
			return nil
		}

		fmt.Printf("Updated config: %s\n", ctx.configPath)
		fmt.Printf("changed: %s\n", strings.Join(changed, ", "))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current config.toml values",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})

	configSetCmd.Flags().StringVar(&configSetHost, "host", "", "Set Home Assistant host and port")
	configSetCmd.Flags().BoolVar(&configSetTLS, "tls", false, "Use https/wss")
	configSetCmd.Flags().BoolVar(&configSetTokenPrompt, "token-prompt", false, "Prompt for the access token without echo")
	configSetCmd.Flags().StringVar(&configSetReplyTimeout, "reply-timeout", "", "Set per-reply timeout (e.g. 30s)")
	configSetCmd.Flags().StringVar(&configSetAccent, "accent", "", "Set UI accent color (ANSI 0-255 or #RRGGBB)")

	rootCmd.AddCommand(configCmd)
}
