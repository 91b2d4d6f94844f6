package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/pkgstore"
)

var getCmd = &cobra.Command{
	Use:   "get <file> <path>",
	Short: "Resolve a path inside a package",
	Long:  "Resolve a logical path (an app file path or a comic page number) and write its bytes to stdout or --output.",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	pkg, err := pkgstore.Load(args[0], loadOptions()...)
	if err != nil {
		return err
	}

	res, ok := pkg.Get(args[1])
	if !ok {
		return fmt.Errorf("%s: path %q not found", args[0], args[1])
	}

	newLogger().Debug("resolved", "path", args[1], "mime", res.MIMEType, "bytes", len(res.Data))

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		return os.WriteFile(output, res.Data, 0644)
	}
	_, err = cmd.OutOrStdout().Write(res.Data)
	return err
}
