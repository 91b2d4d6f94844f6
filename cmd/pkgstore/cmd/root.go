package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/pkgstore"
	"github.com/aweris/pkgstore/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "pkgstore",
	Short:         "Content-addressed package store CLI",
	Long:          "CLI for inspecting package files, loading them into a library and syncing them with OCI registries.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		newLogger().Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/pkgstore/config.yaml)")
	flags.String("cache-dir", "", "cache directory (default: ~/.local/share/pkgstore)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Int("concurrency", pkgstore.DefaultConcurrency, "parallel loads and transfers")
	flags.Bool("verify", false, "recompute blob hashes when loading packages")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.String("api-url", "", "base URL of a remote library API")

	viper.BindPFlag("cache_dir", flags.Lookup("cache-dir"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("concurrency", flags.Lookup("concurrency"))
	viper.BindPFlag("verify", flags.Lookup("verify"))
	viper.BindPFlag("metrics_file", flags.Lookup("metrics-file"))
	viper.BindPFlag("api_url", flags.Lookup("api-url"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PKGSTORE")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", defaultCacheDir())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			newLogger().Warn("ignoring config file", "err", err)
		}
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pkgstore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "pkgstore")
	}
	return ".pkgstore"
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pkgstore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "pkgstore")
	}
	return ".pkgstore"
}

func getCacheDir() string {
	return viper.GetString("cache_dir")
}

// packagesDir is where pulled package files are stored and where the
// library command loads from by default.
func packagesDir() string {
	return filepath.Join(getCacheDir(), "packages")
}

// openStore opens the local store of pulled package files.
func openStore() (store.Store, error) {
	return store.NewLocalStore(packagesDir(), loadOptions()...)
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "pkgstore"})
	if level, err := log.ParseLevel(viper.GetString("log_level")); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func loadOptions() []pkgstore.LoadOption {
	if viper.GetBool("verify") {
		return []pkgstore.LoadOption{pkgstore.WithVerify()}
	}
	return nil
}

// writeMetrics flushes m to the configured textfile, if any.
func writeMetrics(m *pkgstore.Metrics, logger *log.Logger) {
	path := viper.GetString("metrics_file")
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn("write metrics", "path", path, "err", err)
	}
}
