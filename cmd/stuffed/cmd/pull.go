package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/stuffed"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull a component from a registry",
	Long:  "Pull a WebAssembly component from an OCI registry into a directory, named by its content digest.",
	Args:  cobra.NoArgs,
	RunE:  runPull,
}

func init() {
	pullCmd.Flags().StringP("reference", "r", "", "source reference (registry/repository:tag)")
	pullCmd.Flags().StringP("output-directory", "o", ".", "directory to write the component to")
	pullCmd.MarkFlagRequired("reference")

	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) (err error) {
	ref, _ := cmd.Flags().GetString("reference")
	outDir, _ := cmd.Flags().GetString("output-directory")

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("%w: %w", stuffed.ErrIO, err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer closeClient(client, &err)

	path, err := client.Pull(cmd.Context(), ref, outDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pulled: %s\n", path)
	return nil
}
