package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sliverarmory/rosaserver/layout"
)

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the memory layout table",
		Long: `Print the memory layout table: globals, functions, entity arrays and
struct fields with their offsets.

The table comes from --layout, then the config's layout setting. Pass
--base to print absolute addresses for a process image loaded there.

Examples:
  rosaserver layout
  rosaserver layout --layout ./custom.yaml --base 0x555555554000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, _ := cmd.Flags().GetString("layout")
			baseText, _ := cmd.Flags().GetString("base")
			if ref == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				ref = cfg.Layout
			}

			var base uint64
			if baseText != "" {
				b, err := strconv.ParseUint(baseText, 0, 64)
				if err != nil {
					return fmt.Errorf("invalid --base %q: %w", baseText, err)
				}
				base = b
			}

			spec, err := layout.Open(ref)
			if err != nil {
				return err
			}
			return printLayout(cmd.OutOrStdout(), spec, base)
		},
	}
	cmd.Flags().String("layout", "", "Layout build id or YAML file")
	cmd.Flags().String("base", "", "Image base to add to every offset")
	return cmd
}

func printLayout(out io.Writer, spec *layout.Spec, base uint64) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	addr := func(off uint64) string { return fmt.Sprintf("%#x", base+off) }

	fmt.Fprintf(w, "build\t%s\n\n", spec.Build)

	fmt.Fprintln(w, "GLOBAL\tADDRESS\tTYPE\tFLAGS")
	for _, g := range spec.Globals {
		flags := ""
		if g.ReadOnly {
			flags += "readonly "
		}
		if g.Pry > 0 {
			flags += fmt.Sprintf("pry=%d ", g.Pry)
		}
		if g.Size > 0 {
			flags += fmt.Sprintf("size=%d", g.Size)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.Name, addr(g.Offset), g.Type, flags)
	}

	fmt.Fprintln(w, "\nFUNCTION\tADDRESS")
	for _, f := range spec.Functions {
		fmt.Fprintf(w, "%s\t%s\n", f.Name, addr(f.Offset))
	}

	fmt.Fprintln(w, "\nARRAY\tADDRESS\tSTRUCT\tSTRIDE\tCAPACITY")
	for _, a := range spec.Arrays {
		fmt.Fprintf(w, "%s\t%s\t%s\t%#x\t%d\n", a.Name, addr(a.Offset), a.Struct, a.Stride, a.Capacity)
	}

	names := make([]string, 0, len(spec.Structs))
	for name := range spec.Structs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "\n%s\tOFFSET\tTYPE\n", name)
		for _, f := range spec.Structs[name] {
			typ := string(f.Type)
			if f.Kind != "" {
				typ += " -> " + f.Kind
			}
			fmt.Fprintf(w, "  %s\t%#x\t%s\n", f.Name, f.Offset, typ)
		}
	}
	return w.Flush()
}
