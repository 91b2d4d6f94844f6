package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aweris/pkgstore"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show a package file's manifest",
	Long:  "Load a package file and print its hash, manifest kind and the paths or pages it serves.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	pkg, err := pkgstore.Load(args[0], loadOptions()...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "hash\t%s\n", pkg.Hash)
	fmt.Fprintf(out, "kind\t%s\n", pkgstore.Kind(pkg.Manifest))
	fmt.Fprintf(out, "blobs\t%d\n", pkg.Len())

	switch m := pkg.Manifest.(type) {
	case pkgstore.AppManifest:
		fmt.Fprintf(out, "target\t%s\n", m.Target)
		paths := make([]string, 0, len(m.Paths))
		for p := range m.Paths {
			paths = append(paths, p)
		}
		slices.Sort(paths)
		for _, p := range paths {
			fmt.Fprintf(out, "%s\t%s\n", p, m.Paths[p])
		}
	case pkgstore.ComicManifest:
		for i, h := range m.Pages {
			fmt.Fprintf(out, "%d\t%s\n", i, h)
		}
	default:
		panic(fmt.Sprintf("unhandled manifest type %T", m))
	}
	return nil
}
