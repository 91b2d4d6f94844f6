package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/pkgstore"
)

var libraryCmd = &cobra.Command{
	Use:   "library [dir]",
	Short: "Load a directory of packages",
	Long: "Load every package file under dir (default: the pulled packages in the cache) and list packages and handlers. " +
		"With --target and --path, resolve the path through the target's handler instead.",
	Args: cobra.MaximumNArgs(1),
	RunE: runLibrary,
}

func init() {
	libraryCmd.Flags().String("target", "", "resolve through the handler for this target")
	libraryCmd.Flags().String("path", "", "path to resolve in the handler package")
	rootCmd.AddCommand(libraryCmd)
}

func runLibrary(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	m := pkgstore.NewMetrics()
	defer writeMetrics(m, logger)

	library := pkgstore.NewLibrary(
		pkgstore.WithLogger(logger),
		pkgstore.WithMetrics(m),
		pkgstore.WithConcurrency(viper.GetInt("concurrency")),
		pkgstore.WithLoadOptions(loadOptions()...),
	)

	var err error
	if len(args) > 0 {
		_, err = library.LoadDir(cmd.Context(), args[0])
	} else {
		_, err = loadStore(cmd.Context(), library)
	}
	if err != nil {
		// Packages that loaded are still usable.
		logger.Warn("some packages failed to load", "err", err)
	}

	out := cmd.OutOrStdout()

	if name, _ := cmd.Flags().GetString("target"); name != "" {
		target, err := pkgstore.ParseTarget(name)
		if err != nil {
			return err
		}
		handler, ok := library.Handler(target)
		if !ok {
			return fmt.Errorf("no handler for target %s", target)
		}
		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			fmt.Fprintln(out, handler.Hash)
			return nil
		}
		res, ok := handler.Get(path)
		if !ok {
			return fmt.Errorf("handler %s: path %q not found", handler.Hash.Short(), path)
		}
		_, err = out.Write(res.Data)
		return err
	}

	packages := library.Packages()
	for _, h := range pkgstore.SortedHashes(packages) {
		fmt.Fprintf(out, "%s\t%s\n", h, pkgstore.Kind(packages[h]))
	}
	for _, target := range pkgstore.Targets() {
		if h, ok := library.Handlers()[target]; ok {
			fmt.Fprintf(out, "handler %s\t%s\n", target, h)
		}
	}
	if len(packages) == 0 {
		fmt.Fprintln(out, "(no packages)")
	}
	return nil
}

// loadStore loads every package file in the local store.
func loadStore(ctx context.Context, library *pkgstore.Library) ([]*pkgstore.Package, error) {
	local, err := openStore()
	if err != nil {
		return nil, err
	}
	paths, err := local.List(ctx)
	if err != nil {
		return nil, err
	}
	return library.LoadFiles(ctx, paths)
}
