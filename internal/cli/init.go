package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/lists/internal/paths"
	"github.com/mesh-intelligence/lists/pkg/lists"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and the database",
		Long: "Create the configuration directory with a default config.yaml and\n" +
			"create or upgrade the database. A --data-dir given here is recorded\n" +
			"in config.yaml.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.dataDir != "" {
				dir, err := filepath.Abs(a.dataDir)
				if err != nil {
					return err
				}
				path := filepath.Join(a.configDir, paths.ConfigFileName)
				if err := setConfigValue(path, cfgKeyDataDir, dir); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				a.v.Set(cfgKeyDataDir, dir)
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", e.Path())
				return nil
			})
		},
	}
}

// setConfigValue sets a top-level key of a YAML file, keeping the comments
// and order of the rest of the document.
func setConfigValue(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}

	set := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			root.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
			set = true
			break
		}
	}
	if !set {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}
