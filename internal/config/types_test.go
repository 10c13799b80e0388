package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	invalidPort := cfg
	invalidPort.Server.Listen.Port = -1
	require.Error(t, invalidPort.Validate())

	ephemeralPort := cfg
	ephemeralPort.Server.Listen.Port = 0
	require.NoError(t, ephemeralPort.Validate())

	unknownBackend := cfg
	unknownBackend.Server.Storage.Backend = "indexeddb"
	require.Error(t, unknownBackend.Validate())

	negativeCapacity := cfg
	negativeCapacity.Server.Storage.MaxBytes = -1
	require.Error(t, negativeCapacity.Validate())

	fileWithoutDir := cfg
	fileWithoutDir.Server.Storage.Backend = "file"
	require.Error(t, fileWithoutDir.Validate())

	sqliteWithoutPath := cfg
	sqliteWithoutPath.Server.Storage.Backend = "sqlite"
	require.Error(t, sqliteWithoutPath.Validate())

	zeroBatch := cfg
	zeroBatch.Server.Scheduler.BatchSize = 0
	require.Error(t, zeroBatch.Validate())

	missingModel := cfg
	missingModel.Server.Generator.Model = " "
	require.Error(t, missingModel.Validate())

	disabledWithoutModel := missingModel
	disabledWithoutModel.Server.Generator.Backend = "disabled"
	require.NoError(t, disabledWithoutModel.Validate())

	unknownGenerator := cfg
	unknownGenerator.Server.Generator.Backend = "dalle"
	require.Error(t, unknownGenerator.Validate())

	brokenTemplate := cfg
	brokenTemplate.Server.Generator.PromptTemplate = "{{ .DisplayName "
	require.Error(t, brokenTemplate.Validate())

	unknownFunc := cfg
	unknownFunc.Server.Generator.PromptTemplate = "{{ .DisplayName | shout }}"
	require.Error(t, unknownFunc.Validate())

	for _, fn := range []string{`{{ env "HOME" }}`, `{{ expandenv "$HOME" }}`, `{{ readFile "/etc/passwd" }}`} {
		envTemplate := cfg
		envTemplate.Server.Generator.PromptTemplate = "icon " + fn
		require.Error(t, envTemplate.Validate(), fn)
	}

	var nilCfg *Config
	require.Error(t, nilCfg.Validate())
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 500*time.Millisecond, cfg.Server.Scheduler.StartDelay())
	require.Equal(t, 120*time.Second, cfg.Server.Generator.Timeout())

	cfg.Server.Scheduler.StartDelayMillis = 0
	cfg.Server.Generator.TimeoutSeconds = 0
	require.Zero(t, cfg.Server.Scheduler.StartDelay())
	require.Zero(t, cfg.Server.Generator.Timeout())
}
