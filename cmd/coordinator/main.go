// Command coordinator runs the consensus-layer process: it seals
// nondeterministic input into totally-ordered batches, persists them to
// a session log, and serves them to connected runtime replicas.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicode/replicode/internal/errx"
	"github.com/replicode/replicode/pkg/clock"
	"github.com/replicode/replicode/pkg/coordinator"
	"github.com/replicode/replicode/pkg/httpstatus"
	"github.com/replicode/replicode/pkg/logevt"
	"github.com/replicode/replicode/pkg/modulestore"
	"github.com/replicode/replicode/pkg/nat"
	"github.com/replicode/replicode/pkg/sessionlog"
	"github.com/replicode/replicode/pkg/wire"
)

func main() {
	cmd := buildRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "coordinator",
		Short:         "Run the replicode consensus coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCoordinator,
	}

	flags := cmd.Flags()
	flags.String("listen", "127.0.0.1:9000", "Address to accept replica connections on")
	flags.String("session-dir", "./session", "Directory holding the session log and module cache")
	flags.Duration("seal-interval", coordinator.DefaultSealInterval, "How often to seal a new Incoming batch")
	flags.Duration("nat-poll-interval", coordinator.DefaultNATPollInterval, "How often to poll the NAT table for resolved operations")
	flags.String("http-status-addr", "", "Address to serve /healthz and /status on (disabled if empty)")
	flags.String("script", "", "Run a timed benchmark script instead of reading the operator console")

	for _, name := range []string{"listen", "session-dir", "seal-interval", "nat-poll-interval", "http-status-addr", "script"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	sessionDir := viper.GetString("session-dir")
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return err
	}

	emitter := logevt.NewEmitter(logevt.EmitterConfig{Node: "coordinator"}, logevt.NewStdoutSink(os.Stdout))
	defer emitter.Close()

	log, err := sessionlog.Open(filepath.Join(sessionDir, "session.log"))
	if err != nil {
		return errx.Wrap(ErrStartCoordinator, err)
	}
	defer log.Close()

	store, err := modulestore.Open(filepath.Join(sessionDir, "modules"))
	if err != nil {
		return errx.Wrap(ErrStartCoordinator, err)
	}
	defer store.Close()

	natTable := nat.NewTable()
	clk := clock.New()

	var loop *coordinator.MainLoop
	conns := coordinator.NewConnManager(log, emitter, func(runtimeID uint64, b wire.Batch) {
		loop.HandleOutgoingBatch(runtimeID, b)
	})
	loop = coordinator.NewMainLoop(log, natTable, clk, conns, emitter,
		viper.GetDuration("seal-interval"), viper.GetDuration("nat-poll-interval"))

	ctx, cancel := contextWithSignal(context.Background())
	defer cancel()

	go loop.Run()
	defer loop.Stop()

	go func() {
		if err := conns.StartAccepting(viper.GetString("listen")); err != nil {
			_ = emitter.Emit(logevt.EventCodecError, "accept loop exited", nil, nil)
		}
	}()
	defer conns.Close()

	if addr := viper.GetString("http-status-addr"); addr != "" {
		statusSrv := httpstatus.NewServer(addr, func() httpstatus.Snapshot {
			return httpstatus.Snapshot{
				CurrentBatch:  loop.CurrentBatchNumber(),
				ReplicaCount:  loop.ReplicaCount(),
				NATEntryCount: loop.NATEntryCount(),
			}
		})
		go statusSrv.ListenAndServe()
		defer statusSrv.Close()
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "coordinator listening on %s\n", viper.GetString("listen"))

	if scriptPath := viper.GetString("script"); scriptPath != "" {
		f, err := os.Open(scriptPath)
		if err != nil {
			return errx.Wrap(ErrStartCoordinator, err)
		}
		defer f.Close()
		script, err := coordinator.ParseScript(f)
		if err != nil {
			return err
		}
		coordinator.RunScript(script, loop)
		return nil
	}

	consoleDone := make(chan error, 1)
	go func() { consoleDone <- runConsoleWithLoader(ctx, os.Stdin, loop, store) }()

	select {
	case <-ctx.Done():
		time.Sleep(50 * time.Millisecond) // let the last seal tick flush
		return nil
	case err := <-consoleDone:
		return err
	}
}
