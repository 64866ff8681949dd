package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/stuffed"
)

var existsCmd = &cobra.Command{
	Use:   "exists",
	Short: "Check whether a reference exists",
	Long:  "Check whether a reference resolves to a manifest. Prints found, not found or unknown.",
	Args:  cobra.NoArgs,
	RunE:  runExists,
}

func init() {
	existsCmd.Flags().StringP("reference", "r", "", "reference to check")
	existsCmd.MarkFlagRequired("reference")

	rootCmd.AddCommand(existsCmd)
}

func runExists(cmd *cobra.Command, args []string) (err error) {
	ref, _ := cmd.Flags().GetString("reference")

	client, err := newClient()
	if err != nil {
		return err
	}
	defer closeClient(client, &err)

	p, statErr := client.Stat(cmd.Context(), ref)
	if errors.Is(statErr, stuffed.ErrInvalidReference) {
		return statErr
	}
	if statErr != nil {
		logger.Warn("registry check failed", "ref", ref, "err", statErr)
	}

	fmt.Fprintln(cmd.OutOrStdout(), p)
	return nil
}
