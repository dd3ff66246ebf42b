package main

import (
	"bytes"
	"errors"
	"fmt"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/lighthouse/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigReloadCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		values, err := configValues(cc.Cfg)
		if err != nil {
			return err
		}

		return printJSON(cc.Out, values)
	}

	return config.RenderEffective(cc.Cfg, cc.CfgPath, cc.Out)
}

// configValues returns the config keyed by its file keys, with the API
// token masked.
func configValues(cfg *config.Config) (map[string]any, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	values := map[string]any{}
	if _, err := toml.Decode(buf.String(), &values); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.APIToken != "" {
		values["api_token"] = "(set)"
	} else {
		delete(values, "api_token")
	}

	return values, nil
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with every option commented out",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := config.CreateConfig(cc.CfgPath); err != nil {
				if errors.Is(err, config.ErrConfigExists) {
					return fmt.Errorf("%w; edit it or use 'lighthouse config set'", err)
				}

				return err
			}

			cc.Statusf("Wrote %s\n", cc.CfgPath)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one key in the config file",
		Long: `Set one key in the config file, keeping comments and other keys. The file
is created if missing. The change is rejected unless the resulting file is
valid. A running sync --watch daemon picks the change up automatically.`,
		Example:     `  lighthouse config set server_url https://news.example.com`,
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := config.SetKey(cc.CfgPath, args[0], args[1]); err != nil {
				return err
			}

			cc.Statusf("Set %s in %s\n", args[0], cc.CfgPath)

			return nil
		},
	}
}

func newConfigReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running sync --watch daemon to reload its config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := signalDaemon(cc.Cfg.PIDPath(), syscall.SIGHUP); err != nil {
				return err
			}

			cc.Statusf("Sent reload signal to the daemon\n")

			return nil
		},
	}
}
