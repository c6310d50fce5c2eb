package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"
	tmos "github.com/tendermint/tendermint/libs/os"

	"roundabci/activity"
	"roundabci/apps/ping"
	cfg "roundabci/config"
	"roundabci/libs/benchmark"
	"roundabci/libs/utils"
	nm "roundabci/node"
)

// AddNodeFlags exposes config options as flags.
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("agents", "", "comma separated agent ids")
	cmd.Flags().Int("threshold", config.Threshold, "quorum threshold (0 means 2n/3+1)")
	cmd.Flags().Duration("round_timeout", config.RoundTimeout, "ROUND_TIMEOUT of collecting rounds (0 disables it)")
	cmd.Flags().String("db_backend", config.DBBackend, "database backend: memdb | goleveldb")
	cmd.Flags().String("db_dir", config.DBDir, "database directory")
	cmd.Flags().String("rpc_laddr", config.RPCListenAddress, "RPC listen address (empty disables the server)")
}

// DefaultNewNode runs the ping app. It falls back on the public Coingecko
// endpoint when no ping activity is configured.
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*nm.Node, error) {
	app, err := ping.NewApp(config.RoundTimeout)
	if err != nil {
		return nil, err
	}
	if _, ok := config.Activities[ping.PingActivity]; !ok {
		if config.Activities == nil {
			config.Activities = map[string]activity.APISpec{}
		}
		config.Activities[ping.PingActivity] = ping.CoingeckoPingSpec()
	}
	return nm.NewNode(config, app, ping.NewRegistry(), logger)
}

// NewRunNodeCmd returns the command that runs every configured agent until
// they all halt.
func NewRunNodeCmd(nodeProvider nm.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := nodeProvider(config, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}
			logger.Info("Started node", "agents", n.Agents().Size())

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			runErr := n.Wait(context.Background())
			printBenchmark(n)
			if err := n.Stop(); err != nil {
				logger.Error("unable to stop the node", "error", err)
			}
			return runErr
		},
	}

	AddNodeFlags(cmd)
	return cmd
}

// printBenchmark prints the per agent phase means and their spread.
func printBenchmark(n *nm.Node) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "agent\tbehaviour\tphase\tcount\tmean (s)\tmax (s)")

	means := make(map[string][]float64)
	for _, r := range n.Replicas() {
		summary := r.Orchestrator.Benchmark().Summary()
		names := make([]string, 0, len(summary))
		for name := range summary {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			s := summary[name]
			behaviourID, phase := benchmark.SplitName(name)
			fmt.Fprintf(w, "%v\t%s\t%s\t%d\t%.4f\t%.4f\n", r.ID, behaviourID, phase, s.Count, s.Mean, s.Max)
			means[name] = append(means[name], s.Mean)
		}
	}
	fmt.Fprintln(w)

	names := make([]string, 0, len(means))
	for name := range means {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "behaviour\tphase\tavg (s)\tmedian (s)\tmin (s)\tmax (s)")
	for _, name := range names {
		behaviourID, phase := benchmark.SplitName(name)
		m := means[name]
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%.4f\t%.4f\n",
			behaviourID, phase, utils.Avg(m...), utils.Median(m...), utils.Min(m...), utils.Max(m...))
	}
	_ = w.Flush()
}
