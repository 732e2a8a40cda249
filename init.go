package main

import (
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iedon/meta-fileserver/config"
	"github.com/iedon/meta-fileserver/fsutil"
	"github.com/iedon/meta-fileserver/templatex"
)

//go:embed assets/theme.css
var defaultTheme []byte

//go:embed assets/times.js
var timesScript []byte

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [root]",
	Short: "Write the default meta directory",
	Long: `Creates the page skeleton, theme stylesheet and timestamp script under
<root>/<meta-root>. Existing files are kept unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	written, skipped, err := scaffoldMeta(cfg, initForce)
	if err != nil {
		return err
	}
	logger.Info("meta directory ready", "dir", cfg.MetaDir(), "written", written, "skipped", skipped)
	return nil
}

// scaffoldMeta writes the default meta assets for cfg.
func scaffoldMeta(cfg *config.Config, force bool) (written, skipped int, err error) {
	files := []struct {
		path string
		data []byte
	}{
		{cfg.SkeletonPath(), []byte(templatex.DefaultSkeleton)},
		{filepath.Join(cfg.MetaDir(), cfg.Theme), defaultTheme},
		{filepath.Join(cfg.MetaDir(), "js", "times.js"), timesScript},
	}
	for _, f := range files {
		if err := fsutil.WriteFile(f.path, f.data, force); err != nil {
			if errors.Is(err, fsutil.ErrExists) {
				skipped++
				continue
			}
			return written, skipped, fmt.Errorf("write %s: %w", f.path, err)
		}
		written++
	}
	return written, skipped, nil
}
