package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.ID = "node-a"
	require.NoError(t, Validate(cfg))
	require.Equal(t, 8443, cfg.Server.Port)
	require.Equal(t, 168, cfg.Storage.Cleanup.CDMRetentionHours)
	require.Equal(t, 720, cfg.Storage.Cleanup.ObjectRetentionHours)
	require.Equal(t, 10, cfg.Protocol.MaxHopCount)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spacecomms.yaml")
	contents := `
node:
  id: node-a
  name: Test Node
server:
  host: 127.0.0.1
  port: 9443
storage:
  type: file
  file_path: /var/lib/spacecomms
peers:
  - id: node-b
    address: node-b.internal:9443
protocol:
  max_hop_count: 5
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "node-a", cfg.Node.ID)
	require.Equal(t, 9443, cfg.Server.Port)
	require.Equal(t, "file", cfg.Storage.Type)
	require.Equal(t, "/var/lib/spacecomms", cfg.Storage.FilePath)
	require.Len(t, cfg.Peers, 1)
	require.Equal(t, "node-b", cfg.Peers[0].ID)
	require.Equal(t, 5, cfg.Protocol.MaxHopCount)
	// Defaults still filled for anything the file omitted.
	require.Equal(t, 120, cfg.Protocol.SessionTimeoutSeconds)
}

func TestValidateRejectsMissingNodeID(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsFileStorageWithoutPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.ID = "node-a"
	cfg.Storage.Type = "file"
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsDuplicatePeerIDs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.ID = "node-a"
	cfg.Peers = []PeerConfig{
		{ID: "node-b", Address: "b:1"},
		{ID: "node-b", Address: "b2:1"},
	}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsAuthTokenWithoutSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.ID = "node-a"
	cfg.API.Auth.Enabled = true
	cfg.API.Auth.Tokens = []APITokenConfig{{ID: "t1", Permissions: []string{"read"}}}
	require.Error(t, Validate(cfg))
}
