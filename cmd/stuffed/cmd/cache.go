package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/stuffed"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the local component cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached references",
	Long:  "List every reference recorded in the local cache with its component digest.",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Write a cached component to a directory",
	Long:  "Write the component last pushed or pulled for a reference from the local cache, without contacting the registry.",
	Args:  cobra.NoArgs,
	RunE:  runCacheGet,
}

func init() {
	cacheGetCmd.Flags().StringP("reference", "r", "", "reference to load")
	cacheGetCmd.Flags().StringP("output-directory", "o", ".", "directory to write the component to")
	cacheGetCmd.MarkFlagRequired("reference")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) (err error) {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer closeClient(client, &err)

	out := cmd.OutOrStdout()
	count := 0
	for ref, digest := range client.Cached() {
		fmt.Fprintf(out, "%s\t%s\n", ref, digest)
		count++
	}

	if count == 0 {
		fmt.Fprintln(out, "(no entries)")
	}
	return nil
}

func runCacheGet(cmd *cobra.Command, args []string) (err error) {
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

	path, err := client.Load(cmd.Context(), ref, outDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loaded: %s\n", path)
	return nil
}
