package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/fcpp-project/fcpp-go/pkg/auth"
	"github.com/fcpp-project/fcpp-go/pkg/cli"
	"github.com/fcpp-project/fcpp-go/pkg/engine"
	"github.com/fcpp-project/fcpp-go/pkg/logsink"
	"github.com/fcpp-project/fcpp-go/pkg/node"
	"github.com/fcpp-project/fcpp-go/pkg/programs"
	"github.com/fcpp-project/fcpp-go/pkg/scheduler"
	"github.com/fcpp-project/fcpp-go/pkg/settings"
	"github.com/fcpp-project/fcpp-go/pkg/spawner"
	"github.com/fcpp-project/fcpp-go/pkg/transport"
	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// errIOFailure distinguishes a graph/log file I/O failure (exit 2)
// from every other configuration problem (exit 1) at the CLI
// boundary.
var errIOFailure = errors.New("graph or log file I/O error")

type ioError struct {
	Op   string
	Path string
	err  error
}

func (e *ioError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.err) }
func (e *ioError) Unwrap() error { return errIOFailure }

// loadPopulationSpec resolves the run's device population from
// whichever of --topology or --nodes/--arcs was given, rejecting the
// case where neither was supplied.
func loadPopulationSpec(opts runOptions) ([]spawner.NodeSpec, []spawner.ArcSpec, error) {
	if opts.topologyPath != "" {
		if err := checkReadable("fcppsim run --topology", opts.topologyPath); err != nil {
			return nil, nil, err
		}
		topo, err := spawner.LoadYAMLTopology(opts.topologyPath)
		if err != nil {
			return nil, nil, err
		}
		nodes, arcs := spawner.ResolveDeviceParams(topo)
		return nodes, arcs, nil
	}

	if opts.nodesPath == "" {
		return nil, nil, util.NewConfigError("fcppsim run", "one of --nodes or --topology is required")
	}
	if err := checkReadable("fcppsim run --nodes", opts.nodesPath); err != nil {
		return nil, nil, err
	}
	nodes, err := spawner.LoadNodes(opts.nodesPath, opts.attrNames, 0)
	if err != nil {
		return nil, nil, err
	}
	var arcs []spawner.ArcSpec
	if opts.arcsPath != "" {
		if err := checkReadable("fcppsim run --arcs", opts.arcsPath); err != nil {
			return nil, nil, err
		}
		arcs, err = spawner.LoadArcs(opts.arcsPath)
		if err != nil {
			return nil, nil, err
		}
	}
	return nodes, arcs, nil
}

func checkReadable(op, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &ioError{Op: op, Path: path, err: err}
	}
	return f.Close()
}

type runOptions struct {
	program      string
	nodesPath    string
	arcsPath     string
	topologyPath string
	attrNames    []string
	rounds       float64
	period       float64
	retainWindow float64
	parallel     int
	seed         int64
	logPath      string
	principal    string
	roles        map[string]string
}

// loadedSettings caches the persistent CLI settings (~/.fcpp/settings.json)
// used both to seed flag defaults at registration time and, at run
// time, to supply the log directory when --log is empty and the
// directory relative node/arc/topology paths are resolved against.
func loadedSettings() *settings.Settings {
	s, err := settings.Load()
	if err != nil {
		return &settings.Settings{}
	}
	return s
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	sv := loadedSettings()

	defaultProgram := sv.DefaultProgram
	if defaultProgram == "" {
		defaultProgram = "gossip-min"
	}
	defaultParallel := 1
	if sv.ExecutionStrategy == "parallel" {
		defaultParallel = sv.GetWorkers()
	}
	defaultSeed := sv.Seed
	if defaultSeed == 0 {
		defaultSeed = 1
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulated net over a graph description",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts, sv)
		},
	}

	cmd.Flags().StringVar(&opts.program, "program", defaultProgram, "aggregate program to run (gossip-min, collect-sum, branch-parity)")
	cmd.Flags().StringVar(&opts.nodesPath, "nodes", "", "path to the nodes file (required unless --topology is given)")
	cmd.Flags().StringVar(&opts.arcsPath, "arcs", "", "path to the arcs file (empty: fully connected)")
	cmd.Flags().StringVar(&opts.topologyPath, "topology", "", "alternate YAML topology file, in place of --nodes/--arcs")
	cmd.Flags().StringSliceVar(&opts.attrNames, "attrs", []string{"value"}, "node file attribute columns, in order")
	cmd.Flags().Float64Var(&opts.rounds, "rounds", 10, "simulated end time: devices stop scheduling rounds after it")
	cmd.Flags().Float64Var(&opts.period, "period", 1.0, "simulated time between a device's rounds")
	cmd.Flags().Float64Var(&opts.retainWindow, "retain-window", sv.GetRetainWindow(), "context eviction window, in simulated seconds")
	cmd.Flags().IntVar(&opts.parallel, "parallel", defaultParallel, "parallel batch worker count (1: sequential)")
	cmd.Flags().Int64Var(&opts.seed, "seed", defaultSeed, "scheduler random seed")
	cmd.Flags().StringVar(&opts.logPath, "log", "", "log output file or directory (empty: settings log_dir, else stderr)")
	cmd.Flags().StringVar(&opts.principal, "principal", "", "control-plane principal requesting this run (empty: allow-all)")
	cmd.Flags().StringToStringVar(&opts.roles, "roles", nil, "principal=role assignments gating --principal (e.g. alice=admin,bob=viewer)")

	return cmd
}

func runSimulation(cmd *cobra.Command, opts runOptions, sv *settings.Settings) error {
	resolvePath(&opts.nodesPath, sv)
	resolvePath(&opts.arcsPath, sv)
	resolvePath(&opts.topologyPath, sv)

	nodes, arcs, err := loadPopulationSpec(opts)
	if err != nil {
		return err
	}

	if err := checkEmplacePermission(opts); err != nil {
		return err
	}

	program, storageKey, err := resolveProgram(opts.program, nodes)
	if err != nil {
		return err
	}

	strategy := scheduler.Strategy(scheduler.Sequential{})
	if opts.parallel > 1 {
		strategy = scheduler.ParallelBatch{Workers: opts.parallel, Epsilon: 1e-9}
	}

	diag := logsink.NewDiagnostics(1000)
	onRoundError := func(err error) {
		diag.Record(logsink.RoundEvent{Device: 0, Kind: "round", Error: err.Error()})
		util.WithField("error", err).Warn("round error")
	}

	workerCount := 1
	if opts.parallel > 1 {
		workerCount = opts.parallel
	}
	engines := make([]*engine.Engine, workerCount)
	for i := range engines {
		engines[i] = scheduler.WorkerEngine(i, opts.retainWindow)
	}
	var net *scheduler.Net
	var conn *transport.Simulated

	roundFunc := func(ctx context.Context, workerID int, dev *node.Device, now float64) (float64, bool, error) {
		e := engines[workerID]
		for _, env := range dev.DrainMailbox() {
			dev.Context().Insert(env.SenderUID, env.SendTime, now, opts.retainWindow, env.Export)
		}
		prog := program(dev.UID)
		roundErr := e.Round(ctx, dev, now, prog)
		if roundErr == nil && conn != nil {
			_ = conn.Broadcast(ctx, node.Envelope{SenderUID: dev.UID, SendTime: now, Export: dev.Export()})
		}
		next := now + opts.period
		if next > opts.rounds {
			return next, false, roundErr
		}
		return next, true, roundErr
	}

	net = scheduler.NewNet(strategy, opts.seed, roundFunc, onRoundError)
	conn, err = spawner.BuildPopulation(net, nodes, arcs)
	if err != nil {
		return err
	}

	logger, closeLogger, err := buildLogger(opts, nodes, storageKey, sv)
	if err != nil {
		return err
	}
	defer closeLogger()

	agg := &logsink.Aggregator{
		Specs: []logsink.AggregatorSpec{
			{Name: "mean", StorageTag: storageKey, Combine: logsink.Mean},
		},
		Logger: logger,
	}

	printRunConfig(opts, len(nodes))
	progress := logsink.NewConsoleProgress(verboseFlag)
	progress.RunStart(len(nodes), int(opts.rounds/opts.period))

	var ticksDone atomic.Int64
	tick := 0.0
	for tick <= opts.rounds {
		t := tick
		net.ScheduleGlobal(t, func(now float64) {
			var live []*node.Device
			net.Identifier.Each(func(d *node.Device) { live = append(live, d) })
			if err := agg.Record(now, live); err != nil {
				util.WithField("error", err).Warn("aggregator record failed")
			}
			done := ticksDone.Add(1)
			progress.Tick(now, int(done)*len(live))
		})
		tick += opts.period
	}

	if err := net.Run(cmd.Context()); err != nil {
		return err
	}
	progress.RoundErrors(diag.CountByKind())
	progress.RunEnd(int(ticksDone.Load()) * len(nodes))
	printFinalTable(net, storageKey)
	return nil
}

// printRunConfig echoes the resolved run parameters before execution
// when --verbose is set, dot-padded for scanability.
func printRunConfig(opts runOptions, deviceCount int) {
	if !verboseFlag {
		return
	}
	rows := [][2]string{
		{"program", opts.program},
		{"devices", fmt.Sprintf("%d", deviceCount)},
		{"rounds", fmt.Sprintf("%g", opts.rounds)},
		{"period", fmt.Sprintf("%g", opts.period)},
		{"retain-window", fmt.Sprintf("%g", opts.retainWindow)},
		{"parallel", fmt.Sprintf("%d", opts.parallel)},
		{"seed", fmt.Sprintf("%d", opts.seed)},
	}
	for _, r := range rows {
		fmt.Fprintf(os.Stderr, "%s %s\n", cli.Dim(cli.DotPad(r[0], 20)), r[1])
	}
}

// printFinalTable prints each live device's uid alongside its final
// value at storageKey, sorted by uid, as a quick terminal summary
// distinct from the plain-text log sink's data lines.
func printFinalTable(net *scheduler.Net, storageKey string) {
	t := cli.NewTable(cli.Bold("UID"), cli.Bold(storageKey)).RightAlign(0, 1)
	var uids []uint32
	values := make(map[uint32]string)
	net.Identifier.Each(func(d *node.Device) {
		uids = append(uids, d.UID)
		v, ok := d.Storage(storageKey)
		if !ok {
			values[d.UID] = "-"
			return
		}
		values[d.UID] = fmt.Sprintf("%v", v)
	})
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	for _, uid := range uids {
		t.Row(fmt.Sprintf("%d", uid), values[uid])
	}
	t.Flush()
}

// resolvePath rewrites a relative, non-empty path under the
// settings-configured topologies directory, so a user who's set
// TopologiesDir once in ~/.fcpp/settings.json doesn't have to repeat
// it on every --nodes/--arcs/--topology flag.
func resolvePath(path *string, sv *settings.Settings) {
	if *path == "" || filepath.IsAbs(*path) || sv.TopologiesDir == "" {
		return
	}
	*path = filepath.Join(sv.TopologiesDir, *path)
}

func buildLogger(opts runOptions, nodes []spawner.NodeSpec, storageKey string, sv *settings.Settings) (logsink.Logger, func(), error) {
	params := map[string]string{
		"program": opts.program,
		"rounds":  fmt.Sprintf("%g", opts.rounds),
		"devices": fmt.Sprintf("%d", len(nodes)),
	}
	columns := []logsink.Column{{Aggregator: "mean", StorageTag: storageKey}}

	var logger *logsink.FileLogger
	var err error
	switch {
	case opts.logPath != "":
		logger, err = logsink.NewFileLoggerPath(opts.logPath, params, columns)
	case sv.LogDir != "":
		logger, err = logsink.NewFileLoggerDir(sv.LogDir, params, columns)
	default:
		logger, err = logsink.NewFileLoggerWriter(os.Stderr, params, columns)
	}
	if err != nil {
		return nil, nil, &ioError{Op: "fcppsim run --log", Path: opts.logPath, err: err}
	}
	return logger, func() { _ = logger.Close() }, nil
}

// checkEmplacePermission gates the run's device-population build
// behind pkg/auth's control-plane check: an unauthorized --principal
// is rejected before a single device is emplaced. Omitting --roles
// keeps the historical allow-all behaviour for single-user runs.
func checkEmplacePermission(opts runOptions) error {
	if len(opts.roles) == 0 {
		return nil
	}
	roles := make(map[string]auth.Role, len(opts.roles))
	for principal, role := range opts.roles {
		roles[principal] = auth.Role(role)
	}
	checker := auth.NewChecker(roles)
	if err := checker.Check(opts.principal, auth.OpEmplace); err != nil {
		return util.NewConfigError("fcppsim run --principal", err.Error())
	}
	return nil
}

// resolveProgram builds a per-device engine.Program factory for the
// named built-in program, seeding it from each device's declared
// "value" attribute, and reports the storage key it publishes to.
func resolveProgram(name string, nodes []spawner.NodeSpec) (func(uid uint32) engine.Program, string, error) {
	values := make(map[uint32]int64, len(nodes))
	for _, n := range nodes {
		v, _ := parseAttrInt64(n.Attrs["value"])
		values[n.UID] = v
	}

	switch name {
	case "gossip-min":
		return func(uid uint32) engine.Program { return programs.GossipMin(values[uid]) }, "gossip", nil
	case "collect-sum":
		return func(uid uint32) engine.Program { return programs.CollectSum(values[uid] == 0, values[uid]) }, "collected", nil
	case "branch-parity":
		return func(uid uint32) engine.Program { return programs.BranchParity(values[uid]) }, "branch", nil
	default:
		return nil, "", util.NewConfigError("fcppsim run --program", fmt.Sprintf("unknown program %q", name))
	}
}

func parseAttrInt64(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
