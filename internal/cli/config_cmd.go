package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the config file",
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigUnsetCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value from the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			val, ok := config.GetValueAtPath(raw, path)
			if !ok {
				return fmt.Errorf("key %q not found", args[0])
			}
			return printValue(val)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value in the config file",
		Long: `Set a value in the config file. The value is parsed as a YAML scalar,
so "true", "42" and "1.5" are stored typed. The edited file is validated
before it is written unless --force is given.`,
		Example: `  rcmesh config set postoffice.port 7001
  rcmesh config set client.identity.character Aldric
  rcmesh config set logging.flags "[error, send]"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseValue(args[1])
			if err != nil {
				return err
			}
			err = editConfig(args[0], force, func(raw map[string]any, path []string) error {
				config.SetValueAtPath(raw, path, value)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("Set %s = %v\n", args[0], value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "write even if the result fails validation")
	return cmd
}

func newConfigUnsetCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a value from the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := editConfig(args[0], force, func(raw map[string]any, path []string) error {
				if !config.UnsetValueAtPath(raw, path) {
					return fmt.Errorf("key %q not found", args[0])
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("Unset %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "write even if the result fails validation")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config with defaults and environment applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			mask(&cfg.PostOffice.Auth.Token)
			mask(&cfg.Client.Token)
			return yaml.NewEncoder(os.Stdout).Encode(cfg)
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(paths.Config)
		},
	}
}

// editConfig loads the raw file, applies edit at key, validates the result
// and writes it back.
func editConfig(key string, force bool, edit func(raw map[string]any, path []string) error) error {
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	if err := edit(raw, path); err != nil {
		return err
	}
	if !force {
		if err := checkRaw(raw); err != nil {
			return err
		}
	}
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	return config.SaveRaw(paths.Config, raw)
}

// checkRaw decodes an edited file and runs the validator over it.
func checkRaw(raw map[string]any) error {
	cfg, err := config.FromRaw(raw)
	if err != nil {
		return err
	}
	return validate(config.Validate(&cfg))
}

func mask(s *string) {
	if *s != "" {
		*s = "********"
	}
}

func printValue(v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	default:
		fmt.Println(v)
	}
	return nil
}

// parseValue decodes s as a YAML value so numbers, booleans and flow
// sequences keep their type. Anything that decodes to null is kept as
// the literal string.
func parseValue(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("parse value %q: %w", s, err)
	}
	if v == nil {
		return s, nil
	}
	return v, nil
}
