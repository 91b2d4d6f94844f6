package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/pkgstore"
	"github.com/aweris/pkgstore/internal/remote"
)

var pushCmd = &cobra.Command{
	Use:   "push <ref> <file>...",
	Short: "Push package files to a registry",
	Long:  "Validate package files and push them to an OCI registry as one image, one layer per file.",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) (err error) {
	ref, paths := args[0], args[1:]
	logger := newLogger()

	files := make(map[string][]byte, len(paths))
	for _, path := range paths {
		if _, err := pkgstore.Load(path, loadOptions()...); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		if _, dup := files[name]; dup {
			return fmt.Errorf("duplicate file name %s", name)
		}
		files[name] = data
	}

	r, err := remote.NewOCIRemote(ref, remote.NewDefaultAuthenticator())
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

	digest, err := r.Push(cmd.Context(), files)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), digest)
	return nil
}
