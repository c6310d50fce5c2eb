package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"roundabci/activity"
	"roundabci/libs/utils"
	"roundabci/store"
	"roundabci/types"
)

const (
	// EnvPrefix prefixes every environment override, e.g. ROUNDABCI_THRESHOLD.
	EnvPrefix = "ROUNDABCI"

	DefaultDirName    = ".roundabci"
	defaultConfigName = "config"
)

// Config of a local multi-agent run.
type Config struct {
	RootDir string `mapstructure:"home"`

	// Agents lists the participants, in order.
	Agents []string `mapstructure:"agents"`
	// Threshold overrides the default 2n/3+1 quorum when positive.
	Threshold int `mapstructure:"threshold"`

	DBBackend string `mapstructure:"db_backend"`
	DBDir     string `mapstructure:"db_dir"`

	RPCListenAddress string `mapstructure:"rpc_laddr"`
	LogLevel         string `mapstructure:"log_level"`

	// RoundTimeout is the ROUND_TIMEOUT of collecting rounds. Zero disables it.
	RoundTimeout time.Duration `mapstructure:"round_timeout"`
	MaxTxBytes   int           `mapstructure:"max_tx_bytes"`

	// Activities are the HTTP endpoints behaviours may call, by name.
	Activities map[string]activity.APISpec `mapstructure:"activities"`
}

func DefaultConfig() *Config {
	return &Config{
		Agents:           []string{"agent_0", "agent_1", "agent_2", "agent_3"},
		Threshold:        0,
		DBBackend:        store.BackendMemDB,
		DBDir:            "data",
		RPCListenAddress: "tcp://127.0.0.1:26657",
		LogLevel:         "info",
		RoundTimeout:     30 * time.Second,
		MaxTxBytes:       1024 * 1024,
		Activities:       map[string]activity.APISpec{},
	}
}

// TestConfig runs in memory without RPC and with short timeouts.
func TestConfig() *Config {
	cfg := DefaultConfig()
	cfg.RPCListenAddress = ""
	cfg.LogLevel = "debug"
	cfg.RoundTimeout = time.Second
	return cfg
}

func (cfg *Config) SetRoot(root string) *Config {
	cfg.RootDir = root
	return cfg
}

// DBPath is DBDir resolved against the root directory.
func (cfg *Config) DBPath() string {
	if filepath.IsAbs(cfg.DBDir) {
		return cfg.DBDir
	}
	return filepath.Join(cfg.RootDir, cfg.DBDir)
}

func (cfg *Config) AgentSet() *types.AgentSet {
	ids := make([]types.AgentID, len(cfg.Agents))
	for i, a := range cfg.Agents {
		ids[i] = types.AgentID(a)
	}
	return types.NewAgentSet(ids)
}

// QuorumThreshold is the threshold used by every round.
func (cfg *Config) QuorumThreshold() int {
	return types.ResolveThreshold(len(cfg.Agents), cfg.Threshold)
}

func (cfg *Config) ValidateBasic() error {
	if len(cfg.Agents) == 0 {
		return errors.New("no agents configured")
	}
	seen := make(map[string]struct{}, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if err := types.AgentID(a).ValidateBasic(); err != nil {
			return errors.Wrapf(err, "agent %q", a)
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("duplicate agent %q", a)
		}
		seen[a] = struct{}{}
	}
	if cfg.Threshold < 0 {
		return errors.New("threshold can't be negative")
	}
	if cfg.Threshold > len(cfg.Agents) {
		return fmt.Errorf("threshold %d exceeds the number of agents %d", cfg.Threshold, len(cfg.Agents))
	}
	switch cfg.DBBackend {
	case store.BackendMemDB, store.BackendGoLevelDB:
	default:
		return fmt.Errorf("unsupported db backend %q", cfg.DBBackend)
	}
	if cfg.RoundTimeout < 0 {
		return errors.New("round_timeout can't be negative")
	}
	if cfg.MaxTxBytes <= 0 {
		return errors.New("max_tx_bytes must be positive")
	}
	for name, spec := range cfg.Activities {
		if err := spec.ValidateBasic(); err != nil {
			return errors.Wrapf(err, "activity %q", name)
		}
	}
	return nil
}

// SetDefaults registers the scalar defaults so environment overrides are
// picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("agents", strings.Join(def.Agents, ","))
	v.SetDefault("threshold", def.Threshold)
	v.SetDefault("db_backend", def.DBBackend)
	v.SetDefault("db_dir", def.DBDir)
	v.SetDefault("rpc_laddr", def.RPCListenAddress)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("round_timeout", def.RoundTimeout)
	v.SetDefault("max_tx_bytes", def.MaxTxBytes)
}

// Load reads <home>/config.{toml,yaml,json} when present, applies
// ROUNDABCI_* environment overrides, and validates the result.
func Load(v *viper.Viper, home string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if home != "" {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(home)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "read config")
			}
		}
	}

	// lists come from viper alone, decoding would otherwise merge them with
	// the defaults
	cfg := DefaultConfig()
	cfg.Agents = nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Agents = normalizeAgents(cfg.Agents)
	cfg.SetRoot(home)

	if err := cfg.ValidateBasic(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// normalizeAgents accepts both a list and a single comma separated entry.
func normalizeAgents(agents []string) []string {
	res := make([]string, 0, len(agents))
	for _, a := range agents {
		res = append(res, utils.SplitAndTrimEmpty(a, ",", " ")...)
	}
	return res
}
