package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push a component to a registry",
	Long: `Push a WebAssembly component to an OCI registry as a single-layer artifact.

Dependency components are validated and hashed but not bundled.`,
	Args: cobra.NoArgs,
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringP("reference", "r", "", "target reference (registry/repository:tag)")
	pushCmd.Flags().String("root-path", "", "path of the root component")
	pushCmd.Flags().StringSlice("component-paths", nil, "paths of dependency components")
	pushCmd.MarkFlagRequired("reference")
	pushCmd.MarkFlagRequired("root-path")

	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) (err error) {
	ref, _ := cmd.Flags().GetString("reference")
	rootPath, _ := cmd.Flags().GetString("root-path")
	deps, _ := cmd.Flags().GetStringSlice("component-paths")
	ctx := cmd.Context()

	files, err := readComponents(ctx, append([]string{rootPath}, deps...), jobs())
	if err != nil {
		return err
	}
	root := files[0]
	for _, dep := range files[1:] {
		logger.Warn("dependency component not bundled", "path", dep.Path, "digest", dep.Digest)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer closeClient(client, &err)

	logger.Info("pushing", "ref", ref, "path", root.Path, "size", len(root.Content), "insecure", viper.GetBool("insecure"))

	res, err := client.Push(ctx, ref, root.Content, root.Digest)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pushed: %s with digest: %s\n", res.Reference, root.Digest)
	return nil
}
