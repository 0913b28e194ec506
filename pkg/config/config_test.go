package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pjon-go/pjon/pkg/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "bus:\n  id: \"10.0.0.1\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "loopback", cfg.Strategy.Type)
	require.Equal(t, 115200, cfg.Strategy.BaudRate)
	require.Equal(t, "pjon.db", cfg.Store.Path)
	require.Equal(t, "pjon", cfg.MQTT.TopicPrefix)
	require.NotNil(t, cfg.Bus.Acknowledge)
	require.True(t, *cfg.Bus.Acknowledge)
	require.NotNil(t, cfg.Bus.AutoDelete)
}

func TestLoadRejectsSerialWithoutPort(t *testing.T) {
	path := writeConfig(t, "strategy:\n  type: serial\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, "strategy:\n  type: carrier-pigeon\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMQTTWithoutBroker(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  enabled: true\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestBusIDFromExplicitID(t *testing.T) {
	cfg := &Config{}
	cfg.Bus.ID = "10.0.0.1"
	id, err := cfg.BusID()
	require.NoError(t, err)
	require.Equal(t, protocol.BusID{10, 0, 0, 1}, id)
}

func TestBusIDFromExplicitIDRejectsGarbage(t *testing.T) {
	cfg := &Config{}
	cfg.Bus.ID = "not-an-address"
	_, err := cfg.BusID()
	require.Error(t, err)
}
