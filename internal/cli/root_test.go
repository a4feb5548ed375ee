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
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: "0.0.0.0"
  port: 9090
relying_party:
  id: "auth.example.com"
  origins:
    - "https://auth.example.com"
`), 0644))

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, "auth.example.com", cfg.RelyingParty.ID)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	viper.Set("port", 7070)
	viper.Set("log-level", "debug")
	t.Cleanup(func() {
		viper.Set("port", 0)
		viper.Set("log-level", "")
	})

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_InvalidOverrideRejected(t *testing.T) {
	viper.Set("log-level", "loud")
	t.Cleanup(func() { viper.Set("log-level", "") })

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["version"])
}
