package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/pkgstore"
	"github.com/aweris/pkgstore/internal/api"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Query a remote library API",
	Long:  "Fetch package and handler snapshots from the library API at --api-url.",
}

var apiPackagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List packages known to the remote library",
	Args:  cobra.NoArgs,
	RunE:  runAPIPackages,
}

var apiHandlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List handlers registered in the remote library",
	Args:  cobra.NoArgs,
	RunE:  runAPIHandlers,
}

func init() {
	apiCmd.AddCommand(apiPackagesCmd, apiHandlersCmd)
	rootCmd.AddCommand(apiCmd)
}

func newAPIClient() (*api.Client, error) {
	base := viper.GetString("api_url")
	if base == "" {
		return nil, errors.New("api url not set (use --api-url or PKGSTORE_API_URL)")
	}
	return api.New(base)
}

func runAPIPackages(cmd *cobra.Command, _ []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	packages, err := client.Packages(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, h := range pkgstore.SortedHashes(packages) {
		fmt.Fprintf(out, "%s\t%s\n", h, pkgstore.Kind(packages[h]))
	}
	return nil
}

func runAPIHandlers(cmd *cobra.Command, _ []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	handlers, err := client.Handlers(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, target := range pkgstore.Targets() {
		if h, ok := handlers[target]; ok {
			fmt.Fprintf(out, "%s\t%s\n", target, h)
		}
	}
	return nil
}
