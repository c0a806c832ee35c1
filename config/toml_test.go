package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"
)

func TestEnsureRoot(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, EnsureRoot(tmpDir))

	for _, dir := range []string{tmpDir, filepath.Join(tmpDir, defaultConfigDir), filepath.Join(tmpDir, defaultDataDir)} {
		fi, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, fi.IsDir())
	}
}

// TestWriteConfigFile renders the default config to disk and parses it back
// as TOML, checking that every section survives the round trip.
func TestWriteConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, EnsureRoot(tmpDir))

	cfg := DefaultConfig()
	cfg.SetRoot(tmpDir)
	cfg.Moniker = "toml-round-trip"
	cfg.RPC.CORSAllowedOrigins = []string{"https://arvo.example"}

	require.NoError(t, WriteConfigFile(tmpDir, cfg))

	var parsed struct {
		Moniker   string `toml:"moniker"`
		LogLevel  string `toml:"log-level"`
		LogFormat string `toml:"log-format"`
		NodeKey   string `toml:"node-key-file"`

		State struct {
			Backend string `toml:"backend"`
			DBPath  string `toml:"db-dir"`
		} `toml:"state"`

		Pool struct {
			Size            int    `toml:"size"`
			MaxIntentsBytes int64  `toml:"max-intents-bytes"`
			CacheSize       int    `toml:"cache-size"`
			MaxIntentBytes  int    `toml:"max-intent-bytes"`
			PurgeInterval   string `toml:"purge-interval"`
		} `toml:"pool"`

		Gossip struct {
			FanOut            int `toml:"fan-out"`
			PeerQueueCapacity int `toml:"peer-queue-capacity"`
			SentCacheSize     int `toml:"sent-cache-size"`
		} `toml:"gossip"`

		Matcher struct {
			MaxCycleLength int    `toml:"max-cycle-length"`
			ScanInterval   string `toml:"scan-interval"`
			CommitmentTTL  int64  `toml:"commitment-ttl"`
		} `toml:"matcher"`

		Sandbox struct {
			StepQuota    uint64 `toml:"step-quota"`
			ShortCircuit bool   `toml:"short-circuit"`
			Workers      int    `toml:"workers"`
		} `toml:"sandbox"`

		RPC struct {
			Laddr              string   `toml:"laddr"`
			CORSAllowedOrigins []string `toml:"cors-allowed-origins"`
			EventWriteTimeout  string   `toml:"event-write-timeout"`
		} `toml:"rpc"`
	}

	_, err := toml.DecodeFile(cfg.ConfigFile(), &parsed)
	require.NoError(t, err)

	require.Equal(t, "toml-round-trip", parsed.Moniker)
	require.Equal(t, cfg.LogLevel, parsed.LogLevel)
	require.Equal(t, cfg.LogFormat, parsed.LogFormat)

	require.Equal(t, cfg.State.Backend, parsed.State.Backend)
	require.Equal(t, cfg.Pool.Size, parsed.Pool.Size)
	require.Equal(t, cfg.Pool.MaxIntentsBytes, parsed.Pool.MaxIntentsBytes)
	require.Equal(t, cfg.Gossip.FanOut, parsed.Gossip.FanOut)
	require.Equal(t, cfg.Matcher.MaxCycleLength, parsed.Matcher.MaxCycleLength)
	require.Equal(t, cfg.Matcher.CommitmentTTL, parsed.Matcher.CommitmentTTL)
	require.Equal(t, cfg.Sandbox.StepQuota, parsed.Sandbox.StepQuota)
	require.Equal(t, cfg.Sandbox.ShortCircuit, parsed.Sandbox.ShortCircuit)
	require.Equal(t, cfg.RPC.ListenAddress, parsed.RPC.Laddr)
	require.Equal(t, []string{"https://arvo.example"}, parsed.RPC.CORSAllowedOrigins)

	interval, err := time.ParseDuration(parsed.Matcher.ScanInterval)
	require.NoError(t, err)
	require.Equal(t, cfg.Matcher.ScanInterval, interval)
}
