// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-bioauth.
//
// go-bioauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"os"
	"strings"

	"github.com/jeremyhahn/go-bioauth/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultConfigPath is used when no --config flag or BIOAUTH_CONFIG
// environment variable is provided and the file exists.
const defaultConfigPath = "/etc/bioauth/config.yaml"

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bioauth",
	Short: "go-bioauth - WebAuthn challenge-response authentication server",
	Long: `go-bioauth serves WebAuthn registration and authentication
ceremonies with single-use challenges, sign-counter replay detection
and per-identity account lockout.

Endpoints:
  POST /api/auth/login                     password gate, creates identities
  POST /api/webauthn/registration/begin    start a registration ceremony
  POST /api/webauthn/registration/finish   verify an attestation response
  GET  /api/webauthn/registration/status   whether an identity has authenticators
  POST /api/webauthn/authentication/begin  start an authentication ceremony
  POST /api/webauthn/authentication/finish verify an assertion response`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is "+defaultConfigPath+")")
	rootCmd.PersistentFlags().String("host", "", "interface to listen on")
	rootCmd.PersistentFlags().Int("port", 0, "port to listen on")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	_ = viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// initViper wires flag names to BIOAUTH_ environment variables so
// BIOAUTH_LOG_LEVEL and --log-level resolve through the same key.
func initViper() {
	viper.SetEnvPrefix("BIOAUTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig loads the configuration file and layers the viper-bound
// flag and environment overrides on top.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("BIOAUTH_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if host := viper.GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port := viper.GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format := viper.GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
