package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/stuffed"
)

var rootCmd = &cobra.Command{
	Use:           "stuffed",
	Short:         "WebAssembly components as OCI artifacts",
	Long:          "CLI for pushing and pulling WebAssembly components to and from OCI registries.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger()
	},
}

var logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "stuffed", Level: log.WarnLevel})

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/stuffed/config.yaml)")
	flags.String("cache-dir", "", "component cache directory (default: ~/.stuffed)")
	flags.Bool("insecure", false, "use plain HTTP for registries")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Int("jobs", 0, "parallel file hashing (default: number of CPUs)")

	viper.BindPFlag("cache_dir", flags.Lookup("cache-dir"))
	viper.BindPFlag("insecure", flags.Lookup("insecure"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("jobs", flags.Lookup("jobs"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STUFFED")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", "~/.stuffed")
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("jobs", runtime.NumCPU())

	viper.ReadInConfig()
}

func setupLogger() error {
	lvl, err := log.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)
	return nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stuffed")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "stuffed")
	}
	return ".stuffed"
}

func jobs() int {
	if n := viper.GetInt("jobs"); n > 0 {
		return n
	}
	return 1
}

// newClient builds a client from the resolved configuration. Callers close it.
func newClient() (*stuffed.Client, error) {
	return stuffed.NewClient(
		stuffed.WithInsecure(viper.GetBool("insecure")),
		stuffed.WithCacheDir(viper.GetString("cache_dir")),
		stuffed.WithLogger(logger),
	)
}

func closeClient(c *stuffed.Client, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
