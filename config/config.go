package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDirPerm is the default permissions used when creating
	// directories.
	DefaultDirPerm = 0700

	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName  = "config.toml"
	defaultNodeKeyName     = "node_key.json"
	defaultAccountKeyName  = "account_key.json"
	defaultConfigFilePath  = defaultConfigDir + "/" + defaultConfigFileName
	defaultNodeKeyPath     = defaultConfigDir + "/" + defaultNodeKeyName
	defaultAccountKeyPath  = defaultConfigDir + "/" + defaultAccountKeyName

	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"
)

// Config defines the top-level configuration for an arvo node.
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	State   *StateConfig   `mapstructure:"state"`
	Pool    *PoolConfig    `mapstructure:"pool"`
	Gossip  *GossipConfig  `mapstructure:"gossip"`
	Matcher *MatcherConfig `mapstructure:"matcher"`
	Sandbox *SandboxConfig `mapstructure:"sandbox"`
	RPC     *RPCConfig     `mapstructure:"rpc"`
}

// DefaultConfig returns a default configuration for an arvo node.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig: DefaultBaseConfig(),
		State:      DefaultStateConfig(),
		Pool:       DefaultPoolConfig(),
		Gossip:     DefaultGossipConfig(),
		Matcher:    DefaultMatcherConfig(),
		Sandbox:    DefaultSandboxConfig(),
		RPC:        DefaultRPCConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing.
func TestConfig() *Config {
	return &Config{
		BaseConfig: TestBaseConfig(),
		State:      TestStateConfig(),
		Pool:       TestPoolConfig(),
		Gossip:     TestGossipConfig(),
		Matcher:    TestMatcherConfig(),
		Sandbox:    TestSandboxConfig(),
		RPC:        TestRPCConfig(),
	}
}

// SetRoot sets the RootDir for all config structs.
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.State.RootDir = root
	cfg.Pool.RootDir = root
	cfg.Gossip.RootDir = root
	cfg.Matcher.RootDir = root
	cfg.Sandbox.RootDir = root
	cfg.RPC.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Pool.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [pool] section: %w", err)
	}
	if err := cfg.Gossip.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [gossip] section: %w", err)
	}
	if err := cfg.Matcher.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [matcher] section: %w", err)
	}
	if err := cfg.Sandbox.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [sandbox] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for an arvo node.
type BaseConfig struct {
	// The root directory for all data.
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' or 'json'
	LogFormat string `mapstructure:"log-format"`

	// Path to the JSON file containing the private key to use for node
	// identity on the gossip network and for commitments.
	NodeKey string `mapstructure:"node-key-file"`
}

// DefaultBaseConfig returns a default base configuration.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:   defaultMoniker,
		LogLevel:  "info",
		LogFormat: "plain",
		NodeKey:   defaultNodeKeyPath,
	}
}

// TestBaseConfig returns a base configuration for testing.
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.Moniker = "localnode"
	return cfg
}

// NodeKeyFile returns the full path to the node_key.json file.
func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

// ConfigFile returns the full path to the config.toml file.
func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

// ConfigDir returns the full path to the config directory.
func (cfg BaseConfig) ConfigDir() string {
	return filepath.Join(cfg.RootDir, defaultConfigDir)
}

// DataDir returns the full path to the data directory.
func (cfg BaseConfig) DataDir() string {
	return filepath.Join(cfg.RootDir, defaultDataDir)
}

// ValidateBasic performs basic validation.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case "plain", "json":
	default:
		return errors.New("unknown log format (must be 'plain' or 'json')")
	}
	return nil
}

//-----------------------------------------------------------------------------
// StateConfig

// StateConfig defines configuration for the ledger state store.
type StateConfig struct {
	RootDir string `mapstructure:"home"`

	// Database backend: goleveldb | memdb
	Backend string `mapstructure:"backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`
}

// DefaultStateConfig returns a default configuration for the state store.
func DefaultStateConfig() *StateConfig {
	return &StateConfig{
		Backend: "goleveldb",
		DBPath:  defaultDataDir,
	}
}

// TestStateConfig returns a state store configuration for testing.
func TestStateConfig() *StateConfig {
	cfg := DefaultStateConfig()
	cfg.Backend = "memdb"
	return cfg
}

// DBDir returns the full path to the database directory.
func (cfg *StateConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

//-----------------------------------------------------------------------------
// PoolConfig

// PoolConfig defines configuration for the intent pool.
type PoolConfig struct {
	RootDir string `mapstructure:"home"`

	// Maximum number of intents in the pool
	Size int `mapstructure:"size"`

	// Limit the total size of all intents in the pool in bytes.
	MaxIntentsBytes int64 `mapstructure:"max-intents-bytes"`

	// Size of the cache (used to filter duplicate intents) in intent IDs
	CacheSize int `mapstructure:"cache-size"`

	// Maximum size in bytes of a single encoded intent accepted by the pool
	MaxIntentBytes int `mapstructure:"max-intent-bytes"`

	// How often the pool sweeps for expired intents, in addition to the
	// sweep performed on every committed block.
	PurgeInterval time.Duration `mapstructure:"purge-interval"`
}

// DefaultPoolConfig returns a default configuration for the intent pool.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Size:            5000,
		MaxIntentsBytes: 512 * 1024 * 1024, // 512MB
		CacheSize:       10000,
		MaxIntentBytes:  64 * 1024, // 64kB
		PurgeInterval:   30 * time.Second,
	}
}

// TestPoolConfig returns a configuration for testing the intent pool.
func TestPoolConfig() *PoolConfig {
	cfg := DefaultPoolConfig()
	cfg.CacheSize = 1000
	cfg.PurgeInterval = 10 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *PoolConfig) ValidateBasic() error {
	if cfg.Size < 0 {
		return errors.New("size can't be negative")
	}
	if cfg.MaxIntentsBytes < 0 {
		return errors.New("max-intents-bytes can't be negative")
	}
	if cfg.CacheSize < 0 {
		return errors.New("cache-size can't be negative")
	}
	if cfg.MaxIntentBytes < 0 {
		return errors.New("max-intent-bytes can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// GossipConfig

// GossipConfig defines configuration for the intent gossip propagator.
type GossipConfig struct {
	RootDir string `mapstructure:"home"`

	// Maximum number of peers a newly accepted intent is forwarded to.
	FanOut int `mapstructure:"fan-out"`

	// Capacity of the per-peer outbound queue. When full, the oldest
	// queued envelope is dropped.
	PeerQueueCapacity int `mapstructure:"peer-queue-capacity"`

	// Per-neighbor cap on remembered sent intent IDs for duplicate
	// suppression.
	SentCacheSize int `mapstructure:"sent-cache-size"`
}

// DefaultGossipConfig returns a default configuration for the gossip
// propagator.
func DefaultGossipConfig() *GossipConfig {
	return &GossipConfig{
		FanOut:            8,
		PeerQueueCapacity: 1024,
		SentCacheSize:     50000,
	}
}

// TestGossipConfig returns a gossip configuration for testing.
func TestGossipConfig() *GossipConfig {
	cfg := DefaultGossipConfig()
	cfg.FanOut = 2
	cfg.PeerQueueCapacity = 16
	cfg.SentCacheSize = 1000
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *GossipConfig) ValidateBasic() error {
	if cfg.FanOut <= 0 {
		return errors.New("fan-out must be positive")
	}
	if cfg.PeerQueueCapacity <= 0 {
		return errors.New("peer-queue-capacity must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// MatcherConfig

// MatcherConfig defines configuration for the matching engine.
type MatcherConfig struct {
	RootDir string `mapstructure:"home"`

	// Longest trade ring considered by the cycle search.
	MaxCycleLength int `mapstructure:"max-cycle-length"`

	// How often the engine rescans the pool when no pool-change trigger
	// fires.
	ScanInterval time.Duration `mapstructure:"scan-interval"`

	// Number of ordered blocks a commitment stays eligible for reveal.
	CommitmentTTL int64 `mapstructure:"commitment-ttl"`
}

// DefaultMatcherConfig returns a default configuration for the matching
// engine.
func DefaultMatcherConfig() *MatcherConfig {
	return &MatcherConfig{
		MaxCycleLength: 4,
		ScanInterval:   time.Second,
		CommitmentTTL:  64,
	}
}

// TestMatcherConfig returns a matcher configuration for testing.
func TestMatcherConfig() *MatcherConfig {
	cfg := DefaultMatcherConfig()
	cfg.ScanInterval = 10 * time.Millisecond
	cfg.CommitmentTTL = 8
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *MatcherConfig) ValidateBasic() error {
	if cfg.MaxCycleLength < 2 {
		return errors.New("max-cycle-length must be at least 2")
	}
	if cfg.CommitmentTTL <= 0 {
		return errors.New("commitment-ttl must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// SandboxConfig

// SandboxConfig defines configuration for predicate execution.
type SandboxConfig struct {
	RootDir string `mapstructure:"home"`

	// Step quota for a single predicate evaluation. Exceeding it rejects the
	// transaction for that account.
	StepQuota uint64 `mapstructure:"step-quota"`

	// Stop predicate evaluation at the first rejection instead of always
	// evaluating the full touched-account set. Accepted transactions are
	// always checked against the full set regardless.
	ShortCircuit bool `mapstructure:"short-circuit"`

	// Number of parallel workers evaluating predicates within a single
	// transaction. Zero means one worker per touched account.
	Workers int `mapstructure:"workers"`
}

// DefaultSandboxConfig returns a default configuration for predicate
// execution.
func DefaultSandboxConfig() *SandboxConfig {
	return &SandboxConfig{
		StepQuota:    100000,
		ShortCircuit: true,
		Workers:      0,
	}
}

// TestSandboxConfig returns a sandbox configuration for testing.
func TestSandboxConfig() *SandboxConfig {
	cfg := DefaultSandboxConfig()
	cfg.StepQuota = 1000
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *SandboxConfig) ValidateBasic() error {
	if cfg.StepQuota == 0 {
		return errors.New("step-quota must be positive")
	}
	if cfg.Workers < 0 {
		return errors.New("workers can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// RPCConfig

// RPCConfig defines configuration for the account-facing RPC server.
type RPCConfig struct {
	RootDir string `mapstructure:"home"`

	// TCP address for the RPC server to listen on
	ListenAddress string `mapstructure:"laddr"`

	// A list of origins a cross-domain request can be executed from
	CORSAllowedOrigins []string `mapstructure:"cors-allowed-origins"`

	// How long to wait for a websocket status subscriber before dropping its
	// queued events.
	EventWriteTimeout time.Duration `mapstructure:"event-write-timeout"`
}

// DefaultRPCConfig returns a default configuration for the RPC server.
func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		ListenAddress:      "tcp://127.0.0.1:26670",
		CORSAllowedOrigins: []string{},
		EventWriteTimeout:  10 * time.Second,
	}
}

// TestRPCConfig returns an RPC configuration for testing.
func TestRPCConfig() *RPCConfig {
	cfg := DefaultRPCConfig()
	cfg.ListenAddress = "tcp://127.0.0.1:0"
	return cfg
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If
// runtime fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}

// EnsureRoot creates the root, config, and data directories if they don't
// exist.
func EnsureRoot(rootDir string) error {
	for _, dir := range []string{
		rootDir,
		filepath.Join(rootDir, defaultConfigDir),
		filepath.Join(rootDir, defaultDataDir),
	} {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("could not create directory %q: %w", dir, err)
		}
	}
	return nil
}
