// Command runtime is one replica of the deterministic guest runtime: it
// dials a coordinator, replays the Incoming batch stream against a
// cooperative scheduler of guest machines, and uploads whatever network
// operations those guests produce.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicode/replicode/internal/errx"
	"github.com/replicode/replicode/pkg/clock"
	"github.com/replicode/replicode/pkg/engine"
	"github.com/replicode/replicode/pkg/logevt"
	"github.com/replicode/replicode/pkg/runtime"
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
		Use:           "runtime",
		Short:         "Run a replicode guest runtime replica",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runReplica,
	}

	flags := cmd.Flags()
	flags.String("coordinator", "127.0.0.1:9000", "Address of the coordinator to dial")
	flags.Uint64("fuel-per-tick", runtime.DefaultFuelPerTick, "Fuel units granted to a guest per scheduler run")
	flags.Int64("quota-mb", 64, "Per-guest writable disk quota, in megabytes")
	flags.String("sandbox-dir", "./sandboxes", "Directory under which each guest's sandbox root is created")

	for _, name := range []string{"coordinator", "fuel-per-tick", "quota-mb", "sandbox-dir"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

func runReplica(cmd *cobra.Command, args []string) error {
	sandboxDir, err := filepath.Abs(viper.GetString("sandbox-dir"))
	if err != nil {
		return errx.Wrap(ErrStartRuntime, err)
	}
	if err := os.MkdirAll(sandboxDir, 0755); err != nil {
		return errx.Wrap(ErrStartRuntime, err)
	}

	emitter := logevt.NewEmitter(logevt.EmitterConfig{Node: "runtime"}, logevt.NewStdoutSink(os.Stdout))
	defer emitter.Close()

	clk := clock.New()
	netOut := make(chan wire.NetworkOperation, 256)
	sched := runtime.NewScheduler(runtime.NewSyscalls(clk, netOut), viper.GetUint64("fuel-per-tick"), emitter)

	quotaBytes := viper.GetInt64("quota-mb") * 1024 * 1024
	client, err := runtime.Dial(viper.GetString("coordinator"), clk, sched, netOut, emitter,
		engine.MockBackend{}, sandboxDir, quotaBytes)
	if err != nil {
		return errx.Wrap(ErrStartRuntime, err)
	}
	defer client.Close()

	ctx, cancel := contextWithSignal(cmd.Context())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- client.Run() }()

	fmt.Fprintf(cmd.ErrOrStderr(), "runtime connected to %s\n", viper.GetString("coordinator"))

	select {
	case <-ctx.Done():
		return nil
	case err := <-runDone:
		return err
	}
}
