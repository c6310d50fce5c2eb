package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	tmos "github.com/tendermint/tendermint/libs/os"

	"roundabci/apps/ping"
)

const configFileName = "config.toml"

// InitFilesCmd writes a default config file into the home directory.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the home directory",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	home := config.RootDir
	if home == "" {
		home = "."
	}
	if err := tmos.EnsureDir(home, 0700); err != nil {
		return err
	}

	configFile := filepath.Join(home, configFileName)
	if tmos.FileExists(configFile) {
		logger.Info("Found config file", "path", configFile)
		return nil
	}

	v := viper.New()
	v.Set("agents", config.Agents)
	v.Set("threshold", config.Threshold)
	v.Set("db_backend", config.DBBackend)
	v.Set("db_dir", config.DBDir)
	v.Set("rpc_laddr", config.RPCListenAddress)
	v.Set("log_level", config.LogLevel)
	v.Set("round_timeout", config.RoundTimeout.String())
	v.Set("max_tx_bytes", config.MaxTxBytes)

	spec := ping.CoingeckoPingSpec()
	prefix := "activities." + ping.PingActivity + "."
	v.Set(prefix+"url", spec.URL)
	v.Set(prefix+"method", spec.Method)
	v.Set(prefix+"response_key", spec.ResponseKey)
	v.Set(prefix+"response_type", spec.ResponseType)
	v.Set(prefix+"timeout", spec.Timeout.String())
	v.Set(prefix+"retries", spec.Retries)
	v.Set(prefix+"retry_wait", spec.RetryWait.String())

	if err := v.WriteConfigAs(configFile); err != nil {
		return err
	}
	logger.Info("Generated config file", "path", configFile)
	return nil
}
