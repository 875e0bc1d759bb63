// File: cmd/root_test.go
package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/iwa/internal/config"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["serve"], "serve subcommand missing")
	assert.True(t, names["decide"], "decide subcommand missing")
}

func TestDefaultsProduceValidConfig(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"gpt-4.1", "gpt-4o", "gpt-4.1-mini"}, cfg.LLM.Models)
	assert.Equal(t, 30, cfg.Agent.MaxSteps)
}

func TestDecideCommandRequiresFlags(t *testing.T) {
	assert.NotNil(t, decideCmd.Flag("task"))
	assert.NotNil(t, decideCmd.Flag("snapshot"))
}
