package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// WriteConfigFile renders config using the template and writes it to
// configFilePath.
func WriteConfigFile(rootDir string, config *Config) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		return err
	}

	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	return writeFile(configFilePath, buffer.Bytes(), 0644)
}

func writeFile(filePath string, contents []byte, mode os.FileMode) error {
	if err := os.WriteFile(filePath, contents, mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/myarvohome") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.arvo" by default, but could be changed via $ARVOHOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Output level for logging, including package level options
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

# Path to the JSON file containing the private key to use for node
# authentication in the gossip network and for match-set commitments
node-key-file = "{{ js .BaseConfig.NodeKey }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###          Ledger State Configuration Options     ###
#######################################################
[state]

# Database backend: goleveldb | memdb
backend = "{{ .State.Backend }}"

# Database directory
db-dir = "{{ js .State.DBPath }}"

#######################################################
###          Intent Pool Configuration Options      ###
#######################################################
[pool]

# Maximum number of intents in the pool
size = {{ .Pool.Size }}

# Limit the total size of all intents in the pool.
max-intents-bytes = {{ .Pool.MaxIntentsBytes }}

# Size of the cache (used to filter transactions we saw earlier) in intent IDs
cache-size = {{ .Pool.CacheSize }}

# Maximum size in bytes of a single encoded intent accepted by the pool
max-intent-bytes = {{ .Pool.MaxIntentBytes }}

# How often the pool sweeps for expired intents
purge-interval = "{{ .Pool.PurgeInterval }}"

#######################################################
###       Gossip Propagator Configuration Options   ###
#######################################################
[gossip]

# Maximum number of peers a newly accepted intent is forwarded to
fan-out = {{ .Gossip.FanOut }}

# Capacity of the per-peer outbound queue; the oldest envelope is dropped
# when full
peer-queue-capacity = {{ .Gossip.PeerQueueCapacity }}

# Per-neighbor cap on remembered sent intent IDs
sent-cache-size = {{ .Gossip.SentCacheSize }}

#######################################################
###       Matching Engine Configuration Options     ###
#######################################################
[matcher]

# Longest trade ring considered by the cycle search
max-cycle-length = {{ .Matcher.MaxCycleLength }}

# How often the engine rescans the pool without a pool-change trigger
scan-interval = "{{ .Matcher.ScanInterval }}"

# Number of ordered blocks a commitment stays eligible for reveal
commitment-ttl = {{ .Matcher.CommitmentTTL }}

#######################################################
###     Predicate Sandbox Configuration Options     ###
#######################################################
[sandbox]

# Step quota for a single predicate evaluation
step-quota = {{ .Sandbox.StepQuota }}

# Stop predicate evaluation at the first rejection
short-circuit = {{ .Sandbox.ShortCircuit }}

# Number of parallel predicate workers per transaction (0 = one per account)
workers = {{ .Sandbox.Workers }}

#######################################################
###           RPC Server Configuration Options      ###
#######################################################
[rpc]

# TCP or UNIX socket address for the RPC server to listen on
laddr = "{{ .RPC.ListenAddress }}"

# A list of origins a cross-domain request can be executed from
cors-allowed-origins = [{{ range .RPC.CORSAllowedOrigins }}{{ printf "%q, " . }}{{end}}]

# How long to wait on a websocket status subscriber before dropping its
# queued events
event-write-timeout = "{{ .RPC.EventWriteTimeout }}"
`
