package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/semindex/internal/config"
	"github.com/aman-cerp/semindex/internal/output"
)

func newConfigCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the semindex configuration",
		Long: `config manages the layered semindex configuration: hardcoded defaults,
the user/global config (config.yaml under the XDG config directory), a
per-repository project config, and environment variables, applied in
that order of increasing precedence.

'get' and 'set' operate on the user/global config file; 'provider' manages
one entry of its providers map; 'reset' restores the user config to
defaults, keeping a timestamped backup.`,
	}

	c.AddCommand(newConfigGetCmd())
	c.AddCommand(newConfigSetCmd())
	c.AddCommand(newConfigProviderCmd())
	c.AddCommand(newConfigResetCmd())
	return c
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the effective configuration, or one dotted key within it",
		Long: `With no argument, prints the configuration effective in the current
directory (defaults merged with the user config, the project config, and
environment overrides) as JSON. With a dotted key (e.g.
performance.batch_size), prints just that value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			root, err := config.FindProjectRoot(dir)
			if err != nil {
				root = dir
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			tree, err := toTree(cfg)
			if err != nil {
				return err
			}
			val, ok := treeGet(tree, strings.Split(args[0], "."))
			if !ok {
				return newUsageError(fmt.Sprintf("unknown config key %q", args[0]))
			}
			data, err := json.Marshal(val)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a dotted key in the user/global configuration",
		Long: `Sets one key in the user config file (creating it from defaults if
absent), then validates and persists the result. value is parsed as JSON
when possible (so "64" becomes a number and "true" a bool), otherwise
stored as a plain string.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return newUsageError("set requires exactly a key and a value")
			}
			return runConfigSet(cmd, args[0], args[1])
		},
	}
}

func runConfigSet(cmd *cobra.Command, key, rawValue string) error {
	cfg, err := loadUserOrDefault()
	if err != nil {
		return err
	}

	tree, err := toTree(cfg)
	if err != nil {
		return err
	}

	var value any
	if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
		value = rawValue
	}

	path := strings.Split(key, ".")
	if !treeSet(tree, path, value) {
		return newUsageError(fmt.Sprintf("unknown config key %q", key))
	}

	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	var updated config.Config
	if err := json.Unmarshal(data, &updated); err != nil {
		return newUsageError(fmt.Sprintf("value %q is not valid for key %q", rawValue, key))
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := updated.WriteYAML(config.GetUserConfigPath()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, rawValue)
	return nil
}

func newConfigProviderCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "provider",
		Short: "Manage entries of the configured providers map",
	}
	c.AddCommand(newConfigProviderListCmd())
	c.AddCommand(newConfigProviderSetCmd())
	c.AddCommand(newConfigProviderRemoveCmd())
	return c
}

func newConfigProviderListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			cfg, err := loadUserOrDefault()
			if err != nil {
				return err
			}
			if len(cfg.Providers) == 0 {
				out.Dim("no providers configured")
				return nil
			}
			for name, p := range cfg.Providers {
				marker := ""
				if name == cfg.DefaultProvider {
					marker = " (default)"
				}
				out.Statusf("%s%s: type=%s model=%s dimension=%d", name, marker, p.Type, p.Model, p.Dimension)
			}
			return nil
		},
	}
}

func newConfigProviderSetCmd() *cobra.Command {
	var (
		providerType string
		baseURL      string
		apiKey       string
		model        string
		dimension    int
		makeDefault  bool
	)

	c := &cobra.Command{
		Use:   "set <name>",
		Short: "Create or update a provider entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return newUsageError("provider set requires exactly one provider name")
			}
			cfg, err := loadUserOrDefault()
			if err != nil {
				return err
			}

			p := cfg.Providers[args[0]]
			if providerType != "" {
				p.Type = providerType
			}
			if baseURL != "" {
				p.BaseURL = baseURL
			}
			if apiKey != "" {
				p.APIKey = apiKey
			}
			if model != "" {
				p.Model = model
			}
			if dimension > 0 {
				p.Dimension = dimension
			}
			if cfg.Providers == nil {
				cfg.Providers = map[string]config.ProviderConfig{}
			}
			cfg.Providers[args[0]] = p
			if makeDefault {
				cfg.DefaultProvider = args[0]
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.WriteYAML(config.GetUserConfigPath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provider %q saved\n", args[0])
			return nil
		},
	}

	c.Flags().StringVar(&providerType, "type", "", "Provider type: http or local")
	c.Flags().StringVar(&baseURL, "base-url", "", "Provider base URL")
	c.Flags().StringVar(&apiKey, "api-key", "", "Provider API key")
	c.Flags().StringVar(&model, "model", "", "Provider model identifier")
	c.Flags().IntVar(&dimension, "dimension", 0, "Embedding dimension")
	c.Flags().BoolVar(&makeDefault, "default", false, "Make this the default provider")
	return c
}

func newConfigProviderRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a provider entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return newUsageError("provider remove requires exactly one provider name")
			}
			cfg, err := loadUserOrDefault()
			if err != nil {
				return err
			}
			delete(cfg.Providers, args[0])
			if cfg.DefaultProvider == args[0] {
				cfg.DefaultProvider = ""
			}
			if err := cfg.WriteYAML(config.GetUserConfigPath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provider %q removed\n", args[0])
			return nil
		},
	}
}

func newConfigResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the user configuration to defaults",
		Long:  `Backs up the current user config, then overwrites it with defaults.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backupPath, err := config.ResetUserConfig()
			if err != nil {
				return err
			}
			if backupPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no existing user config; wrote defaults")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "backed up to %s, wrote defaults\n", backupPath)
			}
			return nil
		},
	}
}

func loadUserOrDefault() (*config.Config, error) {
	return config.LoadUserConfig()
}

// toTree round-trips cfg through JSON into a generic map, for dotted-key
// get/set without hand-rolling a reflective field walker.
func toTree(cfg *config.Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func treeGet(tree map[string]any, path []string) (any, bool) {
	var cur any = tree
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func treeSet(tree map[string]any, path []string, value any) bool {
	if len(path) == 0 {
		return false
	}
	cur := tree
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key]
		if !ok {
			nm := map[string]any{}
			cur[key] = nm
			cur = nm
			continue
		}
		nm, ok := next.(map[string]any)
		if !ok {
			return false
		}
		cur = nm
	}
	cur[path[len(path)-1]] = value
	return true
}

