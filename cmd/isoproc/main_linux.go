// Command isoproc runs a command described by a process file in a new
// user, pid, network, mount and uts namespace rooted at its rootfs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerd/log"
	"github.com/criyle/go-isoproc/container"
	"github.com/criyle/go-isoproc/pkg/forkexec"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:           "isoproc",
		Short:         "isoproc runs a process in an isolated environment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logrus.SetOutput(os.Stderr)
			if err := log.SetLevel(logLevel); err != nil {
				return err
			}
			return log.SetFormat(log.OutputFormat(logFormat))
		},
	}

	runCmd = &cobra.Command{
		Use:   "run <process.yaml>",
		Short: "launch the process described by a process file",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
)

// exitError carries the exit code of init to main
type exitError int

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(log.TextFormat), "log format (text, json)")
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadProcess(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := container.NewSession(cfg)
	s.OnReady = func(ctx context.Context, r container.Ready) error {
		ri, err := container.InspectRoot(r.InitPid)
		if err != nil {
			// init may already be gone
			log.G(ctx).WithError(err).Debug("inspect root")
			return nil
		}
		log.G(ctx).WithField("root", ri.String()).Info("process ready")
		return nil
	}

	res, err := s.Run(ctx)
	if err != nil {
		var ce *forkexec.ChildError
		if errors.As(err, &ce) && ce.Location == forkexec.LocExecve {
			return exitError(res.ExitCode())
		}
		return err
	}
	log.G(ctx).WithField("result", res.String()).Debug("process finished")
	if code := res.ExitCode(); code != 0 {
		return exitError(code)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var code exitError
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, "isoproc:", err)
		os.Exit(1)
	}
}
