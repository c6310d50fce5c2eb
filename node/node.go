package node

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/cmap"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmdb "github.com/tendermint/tm-db"

	"roundabci/activity"
	"roundabci/behaviour"
	"roundabci/cas"
	cfg "roundabci/config"
	"roundabci/consensus"
	"roundabci/libs/benchmark"
	"roundabci/libs/metric"
	"roundabci/ordering"
	"roundabci/rpc"
	"roundabci/state"
	"roundabci/store"
	"roundabci/types"
)

// Provider builds the node of a run.
type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Replica is everything one agent owns: its copy of the state machine, its
// orchestrator and its databases.
type Replica struct {
	ID           types.AgentID
	Sequence     *consensus.RoundSequence
	Orchestrator *behaviour.Orchestrator
	Store        *cas.DBStore

	db tmdb.DB
}

// Node runs every configured agent in one process on top of a shared
// ordering service.
type Node struct {
	service.BaseService

	// config
	config *cfg.Config

	app      *consensus.App
	registry *behaviour.Registry
	agents   *types.AgentSet

	ordering   *ordering.LocalService
	replicas   []*Replica
	activities *activity.Registry
	params     map[string]interface{}

	metricSet *metric.MetricSet

	rpcListener net.Listener
}

type Option func(*Node)

// SetActivities replaces the activities built from the config.
func SetActivities(r *activity.Registry) Option {
	return func(n *Node) { n.activities = r }
}

func SetParams(params map[string]interface{}) Option {
	return func(n *Node) { n.params = params }
}

func SetMetricSet(ms *metric.MetricSet) Option {
	return func(n *Node) { n.metricSet = ms }
}

func NewNode(config *cfg.Config, app *consensus.App, registry *behaviour.Registry, logger log.Logger, options ...Option) (*Node, error) {
	if err := config.ValidateBasic(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if err := registry.Validate(app); err != nil {
		return nil, err
	}

	node := &Node{
		config:    config,
		app:       app,
		registry:  registry,
		agents:    config.AgentSet(),
		params:    map[string]interface{}{},
		metricSet: metric.NewMetricSet(),
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)
	for _, option := range options {
		option(node)
	}

	if node.activities == nil {
		activities, err := activitiesFromConfig(config)
		if err != nil {
			return nil, err
		}
		node.activities = activities
	}
	node.activities.SetLogger(logger.With("module", "activity"))

	node.ordering = ordering.NewLocalService(ordering.SetPreCheck(ordering.PreCheckAll(
		ordering.PreCheckMaxBytes(int64(config.MaxTxBytes)),
		ordering.PreCheckSenders(node.agents),
	)))
	node.ordering.SetLogger(logger.With("module", "ordering"))
	if err := node.metricSet.SetMetrics("ordering", node.ordering.Metric()); err != nil {
		return nil, err
	}

	for _, id := range node.agents.Agents {
		r, err := node.createReplica(id, logger.With("agent", id))
		if err != nil {
			node.closeDBs()
			return nil, err
		}
		node.replicas = append(node.replicas, r)
	}
	return node, nil
}

func activitiesFromConfig(config *cfg.Config) (*activity.Registry, error) {
	r := activity.NewRegistry()
	for name, spec := range config.Activities {
		if err := r.Register(name, spec.Func(nil)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (n *Node) createReplica(id types.AgentID, logger log.Logger) (*Replica, error) {
	db, err := store.NewDB(id.String(), n.config.DBBackend, n.config.DBPath())
	if err != nil {
		return nil, errors.Wrapf(err, "open db of %v", id)
	}

	data := state.NewSynchronizedDataWithDB(store.PrefixedDB(db, "data/"))
	seq := consensus.NewRoundSequence(n.app, n.agents,
		consensus.SetThreshold(n.config.Threshold),
		consensus.SetSynchronizedData(data),
	)
	seq.SetLogger(logger.With("module", "consensus"))

	objects := cas.NewDBStore(store.PrefixedDB(db, "cas/"))
	objects.SetLogger(logger.With("module", "cas"))

	bench := benchmark.NewTool()
	orch := behaviour.NewOrchestrator(id, seq, n.registry, n.ordering,
		behaviour.SetActivities(n.activities),
		behaviour.SetStore(objects),
		behaviour.SetParams(n.params),
		behaviour.SetBenchmark(bench),
	)
	orch.SetLogger(logger.With("module", "behaviour"))

	for label, item := range map[string]metric.MetricItem{
		"consensus/" + id.String():    seq.Metric(),
		"orchestrator/" + id.String(): orch.Metric(),
		"benchmark/" + id.String():    bench,
	} {
		if err := n.metricSet.SetMetrics(label, item); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Replica{ID: id, Sequence: seq, Orchestrator: orch, Store: objects, db: db}, nil
}

func (n *Node) OnStart() error {
	for _, r := range n.replicas {
		if err := n.ordering.Subscribe(r.ID.String(), r.Sequence); err != nil {
			return err
		}
		if err := r.Sequence.Start(); err != nil {
			return err
		}
	}
	if err := n.ordering.Start(); err != nil {
		return err
	}
	for _, r := range n.replicas {
		if err := r.Orchestrator.Start(); err != nil {
			return err
		}
	}

	if n.config.RPCListenAddress != "" {
		rpc.SetEnvironment(n.RPCEnvironment())
		listener, err := rpc.StartServer(n.config.RPCListenAddress, n.Logger.With("module", "rpc"))
		if err != nil {
			return err
		}
		n.rpcListener = listener
	}

	n.Logger.Info("node started", "app", n.app.Name(), "agents", n.agents.Size(),
		"threshold", n.config.QuorumThreshold())
	return nil
}

func (n *Node) OnStop() {
	if n.rpcListener != nil {
		if err := n.rpcListener.Close(); err != nil {
			n.Logger.Error("failed to close rpc listener", "err", err)
		}
	}
	for _, r := range n.replicas {
		if err := r.Orchestrator.Stop(); err != nil {
			n.Logger.Error("failed to stop orchestrator", "agent", r.ID, "err", err)
		}
	}
	if err := n.ordering.Stop(); err != nil {
		n.Logger.Error("failed to stop ordering", "err", err)
	}
	for _, r := range n.replicas {
		n.ordering.Unsubscribe(r.ID.String())
		if err := r.Sequence.Stop(); err != nil {
			n.Logger.Error("failed to stop round sequence", "agent", r.ID, "err", err)
		}
	}
	n.closeDBs()
}

func (n *Node) closeDBs() {
	for _, r := range n.replicas {
		if err := r.db.Close(); err != nil {
			n.Logger.Error("failed to close db", "agent", r.ID, "err", err)
		}
	}
}

// Wait blocks until every orchestrator is done and returns the first agent
// failure, if any.
func (n *Node) Wait(ctx context.Context) error {
	for _, r := range n.replicas {
		select {
		case <-r.Orchestrator.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, r := range n.replicas {
		if err := r.Orchestrator.Err(); err != nil {
			return fmt.Errorf("agent %v: %w", r.ID, err)
		}
	}
	return nil
}

func (n *Node) Config() *cfg.Config { return n.config }

func (n *Node) App() *consensus.App { return n.app }

func (n *Node) Agents() *types.AgentSet { return n.agents }

func (n *Node) Ordering() *ordering.LocalService { return n.ordering }

func (n *Node) Replicas() []*Replica { return n.replicas }

// Replica returns the replica of agent id.
func (n *Node) Replica(id types.AgentID) (*Replica, bool) {
	idx := n.agents.GetByID(id)
	if idx < 0 {
		return nil, false
	}
	return n.replicas[idx], true
}

func (n *Node) Activities() *activity.Registry { return n.activities }

func (n *Node) MetricSet() *metric.MetricSet { return n.metricSet }

// RPCEnvironment exposes the replicas to the rpc routes.
func (n *Node) RPCEnvironment() *rpc.Environment {
	replicas := cmap.NewCMap()
	for _, r := range n.replicas {
		replicas.Set(r.ID.String(), r.Sequence)
	}
	return &rpc.Environment{
		Agents:    n.agents,
		Replicas:  replicas,
		Ordering:  n.ordering,
		MetricSet: n.metricSet,
	}
}
