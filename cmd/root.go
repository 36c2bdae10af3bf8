package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/logging"
	"github.com/joescharf/ghostvault/internal/output"
	"github.com/joescharf/ghostvault/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	logger    *zap.Logger

	verbose bool
	dryRun  bool
	asJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "ghost",
	Short: "Ghost Vault - adopt abandoned side projects",
	Long: `ghost runs the Ghost Vault: a marketplace where developers list
abandoned GitHub projects and others ask to take them over.

It serves the HTTP API and live dashboard stream, and manages projects,
users and takeover requests from the command line.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeDeps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/ghost/config.yaml)")
}

func initConfig() {
	// .env in the working directory; real environment variables win.
	_ = godotenv.Load()

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if dir, err := configDirFunc(); err == nil {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	} else {
		fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
		os.Exit(1)
	}

	viper.SetEnvPrefix("GHOST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	stateDir, _ := configDirFunc()
	setDefaults(stateDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "ghost.db"))

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8787)
	viper.SetDefault("server.cors_origin", "*")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	viper.SetDefault("github.token", "")
	viper.SetDefault("github.base_url", "")

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.rate_limit", 1.0)
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	viper.SetDefault("emailjs.service_id", "")
	viper.SetDefault("emailjs.interest_template_id", "")
	viper.SetDefault("emailjs.approval_template_id", "")
	viper.SetDefault("emailjs.public_key", "")
	viper.SetDefault("emailjs.private_key", "")
	viper.SetDefault("emailjs.base_url", "")

	viper.SetDefault("thumbnail.base_url", "")
	viper.SetDefault("auth.session_ttl", "720h")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store and services are opened lazily so config/version run without a db.
}

// getLogger returns the shared zap logger, building it on first call.
func getLogger() *zap.Logger {
	if logger != nil {
		return logger
	}
	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	l, err := logging.New(logging.Config{Level: level, Format: viper.GetString("log.format")})
	if err != nil {
		ui.Warning("%v, falling back to info", err)
		l, _ = logging.New(logging.Config{Format: viper.GetString("log.format")})
	}
	logger = l
	return logger
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.NewSQLiteStore(viper.GetString("db_path"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(cmdContext()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

func closeDeps() {
	if shared != nil {
		shared.hub.Close()
		shared = nil
	}
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func cmdContext() context.Context {
	if ctx := rootCmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
