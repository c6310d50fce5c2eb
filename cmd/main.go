package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "roundabci/cmd/commands"
	cfg "roundabci/config"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cli.NewCompletionCmd(rootCmd, true),
	)

	// NOTE:
	// Users wishing to run their own app can copy this file and pass
	// a provider building it instead of DefaultNewNode.
	nodeFunc := cmd.DefaultNewNode

	// Create & start node
	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.ShowConfigCmd,
		cmd.VersionCmd,
		cmd.NewRunNodeCmd(nodeFunc),
	)
	cmd := cli.PrepareBaseCmd(rootCmd, cfg.EnvPrefix, os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultDirName)))

	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
