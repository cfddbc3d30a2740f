package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/spf13/cobra"
)

var errCheckFailed = errors.New("check failed")

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [script or directory...]",
		Short: "Compile Lua scripts without running them",
		Long: `Compile Lua scripts without running them and report syntax errors.

Directories are searched for *.lua files. With no arguments the
configured entry file and the scripts next to it are checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				args = []string{filepath.Dir(cfg.EntryFile)}
			}

			files, err := luaFiles(args)
			if err != nil {
				return err
			}
			failed := 0
			for _, file := range files {
				if err := compile(file); err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", file, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", file)
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d scripts", errCheckFailed, failed, len(files))
			}
			return nil
		},
	}
}

func luaFiles(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || (path != root && !strings.HasSuffix(path, ".lua")) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func compile(file string) error {
	state := lua.NewState()
	return lua.LoadFile(state, file, "")
}
