package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/vigil/internal/config"
	"github.com/hugo-lorenzo-mato/vigil/internal/fsutil"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a documented default configuration to .vigil.yaml in the current
directory, or to the path given with --config.`,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		path = filepath.Join(cwd, ".vigil.yaml")
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("configuration already exists at %s, use --force to overwrite", path)
	}

	if err := fsutil.AtomicWriteFile(path, []byte(config.DefaultConfigYAML), 0o600); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}

	cmd.Printf("Wrote %s\n", path)
	return nil
}
