package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/fcpp-project/fcpp-go/pkg/engine"
	"github.com/fcpp-project/fcpp-go/pkg/logsink"
	"github.com/fcpp-project/fcpp-go/pkg/node"
	"github.com/fcpp-project/fcpp-go/pkg/programs"
	"github.com/fcpp-project/fcpp-go/pkg/transport"
	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// errDialFailure distinguishes a Redis/tunnel dial failure (exit 2)
// from every other configuration problem (exit 1), mirroring
// cmd/fcppsim's errIOFailure split at the CLI boundary.
var errDialFailure = errors.New("transport dial error")

type dialError struct {
	Op  string
	err error
}

func (e *dialError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.err) }
func (e *dialError) Unwrap() error { return errDialFailure }

type runOptions struct {
	uid          uint32
	addr         string
	program      string
	value        int64
	period       float64
	retainWindow float64
	delay        float64
	tunnelHost   string
	tunnelUser   string
	tunnelPass   string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one device against a real Connector until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd, opts)
		},
	}

	cmd.Flags().Uint32Var(&opts.uid, "uid", 0, "this device's uid (required)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Redis address the Connector publishes/subscribes on (required)")
	cmd.Flags().StringVar(&opts.program, "program", "gossip-min", "aggregate program to run (gossip-min, collect-sum, branch-parity)")
	cmd.Flags().Int64Var(&opts.value, "value", 0, "this device's initial/own value")
	cmd.Flags().Float64Var(&opts.period, "period", 1.0, "wall-clock seconds between rounds")
	cmd.Flags().Float64Var(&opts.retainWindow, "retain-window", 5.0, "context eviction window, in seconds")
	cmd.Flags().Float64Var(&opts.delay, "delay", 0, "propagation delay this device reports to neighbours, in seconds")
	cmd.Flags().StringVar(&opts.tunnelHost, "tunnel-host", "", "SSH host:port to reach --addr through (empty: dial --addr directly)")
	cmd.Flags().StringVar(&opts.tunnelUser, "tunnel-user", "", "SSH user (required with --tunnel-host)")
	cmd.Flags().StringVar(&opts.tunnelPass, "tunnel-pass", "", "SSH password (required with --tunnel-host)")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("addr")

	return cmd
}

func runDevice(cmd *cobra.Command, opts runOptions) error {
	prog, storageKey, err := resolveProgram(opts.program, opts.value)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	dev := node.New(opts.uid, 0)
	diag := logsink.NewDiagnostics(1000)

	cfg := transport.RealConfig{
		UID:     opts.uid,
		Addr:    opts.addr,
		Delay:   func() float64 { return opts.delay },
		Retired: func() bool { return dev.State() == node.Retired },
		OnError: func(err error) {
			kind := "transport"
			if errors.Is(err, util.ErrProtocol) {
				kind = "protocol"
			}
			diag.Record(logsink.RoundEvent{Time: time.Now(), Device: opts.uid, Kind: kind, Error: err.Error()})
			util.WithDevice(opts.uid).WithField("error", err).Debugf("%s fault absorbed", kind)
		},
	}
	if opts.tunnelHost != "" {
		cfg.TunnelHost = opts.tunnelHost
		cfg.Tunnel = &ssh.ClientConfig{
			User:            opts.tunnelUser,
			Auth:            []ssh.AuthMethod{ssh.Password(opts.tunnelPass)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         10 * time.Second,
		}
	}

	conn, err := transport.NewReal(ctx, cfg)
	if err != nil {
		return &dialError{Op: fmt.Sprintf("fcppd run --addr %s", opts.addr), err: err}
	}
	defer conn.Close()

	conn.SetReceiver(dev.Receive)

	eng := engine.New(0, opts.retainWindow)

	util.WithDevice(opts.uid).Infof("fcppd starting: program=%s addr=%s period=%gs", opts.program, opts.addr, opts.period)

	ticker := time.NewTicker(time.Duration(opts.period * float64(time.Second)))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			if counts := diag.CountByKind(); len(counts) > 0 {
				util.WithDevice(opts.uid).Infof("faults absorbed: %v", counts)
			}
			util.WithDevice(opts.uid).Info("fcppd shutting down")
			return nil
		case tick := <-ticker.C:
			now := tick.Sub(start).Seconds()
			for _, env := range dev.DrainMailbox() {
				dev.Context().Insert(env.SenderUID, env.SendTime, now, opts.retainWindow, env.Export)
			}
			if err := eng.Round(ctx, dev, now, prog); err != nil {
				// Round errors are reported, never fatal.
				diag.Record(logsink.RoundEvent{Time: time.Now(), Device: opts.uid, RoundTime: now, Kind: "round", Error: err.Error()})
				util.WithDevice(opts.uid).WithField("error", err).Warn("round error")
				continue
			}
			if v, ok := dev.Storage(storageKey); ok {
				util.WithDevice(opts.uid).Infof("t=%g %s=%v", now, storageKey, v)
			}
			if err := conn.Broadcast(ctx, node.Envelope{SenderUID: opts.uid, SendTime: now, Export: dev.Export()}); err != nil {
				// Broadcast has already retried each attempt with
				// backoff (counted through OnError); reaching here
				// means the export could not be published before
				// shutdown or retirement. Reported, never fatal.
				util.WithDevice(opts.uid).WithField("error", err).Warn("broadcast abandoned")
			}
		}
	}
}

// resolveProgram mirrors cmd/fcppsim's program selection for the
// single-device case: no per-uid value map, just this device's own
// declared value.
func resolveProgram(name string, value int64) (engine.Program, string, error) {
	switch name {
	case "gossip-min":
		return programs.GossipMin(value), "gossip", nil
	case "collect-sum":
		return programs.CollectSum(value == 0, value), "collected", nil
	case "branch-parity":
		return programs.BranchParity(value), "branch", nil
	default:
		return nil, "", util.NewConfigError("fcppd run --program", fmt.Sprintf("unknown program %q", name))
	}
}
