package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// ShowConfigCmd prints the resolved configuration.
var ShowConfigCmd = &cobra.Command{
	Use:     "show-config",
	Aliases: []string{"show_config"},
	Short:   "Show the configuration after file and environment overrides",
	PreRun:  deprecateSnakeCase,
	RunE: func(cmd *cobra.Command, args []string) error {
		bz, err := tmjson.MarshalIndent(config, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(bz))
		return nil
	},
}
