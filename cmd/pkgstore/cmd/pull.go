package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/pkgstore/internal/remote"
)

var pullCmd = &cobra.Command{
	Use:   "pull <ref>",
	Short: "Pull package files from a registry",
	Long:  "Pull package files from an OCI registry into the local cache, validating each one.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) (err error) {
	logger := newLogger()

	local, err := openStore()
	if err != nil {
		return err
	}

	r, err := remote.NewOCIRemote(args[0], remote.NewDefaultAuthenticator())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	r.SetConcurrency(viper.GetInt("concurrency"))
	r.SetLogger(logger)

	files, err := r.Pull(cmd.Context())
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	out := cmd.OutOrStdout()
	for _, name := range names {
		h, path, err := local.Put(cmd.Context(), files[name])
		if err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}
		logger.Debug("stored", "file", name, "path", path)
		fmt.Fprintf(out, "%s\t%s\n", h, name)
	}
	return nil
}
