package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log2json/internal/config"
	"log2json/internal/convert"
	"log2json/internal/follow"
	"log2json/internal/inputfile"
	"log2json/internal/logging"
	"log2json/internal/outputfile"
	"log2json/internal/report"
	"log2json/pkg/kvline"

	"github.com/spf13/cobra"
)

// app holds what the commands share
type app struct {
	configFile string
	fromStart  bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "log2json INPUT_LOG_FILE [OUTPUT_JSON_FILE]",
		Short: "Convert key=value log lines to JSON lines",
		Long: `log2json converts a log file where every line is a list of key=value pairs
into one JSON object per line.

Without OUTPUT_JSON_FILE the JSON goes to stdout. With it, the output is written
to a hidden temp file next to it and linked into place when complete. An existing
OUTPUT_JSON_FILE is never replaced; the temp file is kept and a warning printed.

Settings can also come from .log2json.toml or LOG2JSON_* environment variables.`,
		Args:          usageOnArgError(cobra.RangeArgs(1, 2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runConvert,
	}

	followCmd := &cobra.Command{
		Use:   "follow INPUT_LOG_FILE",
		Short: "Convert lines as they are appended to a log file",
		Long: `Watch INPUT_LOG_FILE and write every appended line as JSON to stdout until
interrupted. A truncated or recreated file is read again from the start.`,
		Args:          usageOnArgError(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runFollow,
	}
	followCmd.Flags().BoolVar(&a.fromStart, "from-start", false, "Convert the existing content before following")

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Config file (default: .log2json.toml in the working or home directory)")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(followCmd)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd
}

// usageOnArgError prints the usage to stderr when the positional arguments don't fit
func usageOnArgError(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
			return err
		}
		return nil
	}
}

func (a *app) setup(cmd *cobra.Command) (*config.Settings, *slog.Logger, error) {
	v, err := config.New(a.configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, nil, err
	}
	settings, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(a.stderr, settings.LogFormat, settings.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return settings, logger, nil
}

func (a *app) runConvert(cmd *cobra.Command, args []string) error {
	settings, logger, err := a.setup(cmd)
	if err != nil {
		return err
	}

	in, err := inputfile.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	var w io.Writer = a.stdout
	var out *outputfile.File
	if len(args) == 2 {
		out, err = outputfile.Create(args[1])
		if err != nil {
			return err
		}
		defer out.Abort()
		w = out
	}

	start := time.Now()
	conv := convert.New(kvline.NewParser(settings.Parser), settings.Policy, logger)
	stats, convErr := conv.Convert(in.Bytes(), w)
	duration := time.Since(start)

	logger.Info("Conversion finished",
		"input", args[0],
		"lines", stats.Lines,
		"written", stats.Written,
		"failed", stats.Skipped,
		"mapped", in.Mapped(),
		"duration", duration)

	// Lines that parsed are kept when the collect policy fails the run; an abort or a write
	// error discards the output.
	keep := convErr == nil || errors.Is(convErr, convert.ErrLinesFailed)
	if out != nil && keep {
		if err := out.Commit(); err != nil {
			if !errors.Is(err, fs.ErrExist) {
				return err
			}
			logger.Warn("Output file already exists, leaving output in temp file",
				"path", out.Path, "temp", out.TempPath)
		}
	}

	if settings.Report != "" {
		r := &report.Report{
			Input:    args[0],
			Policy:   settings.Policy,
			Stats:    stats,
			Duration: duration,
			Content:  in.Bytes(),
		}
		if out != nil {
			r.Output = out.Path
		}
		var lerr *convert.LineError
		if settings.Policy == convert.PolicyAbort && errors.As(convErr, &lerr) {
			r.Aborted = lerr
		}
		if usage, err := report.CurrentUsage(); err == nil {
			r.Usage = usage
		} else {
			logger.Debug("Process usage unavailable", "error", err)
		}
		if err := report.Write(settings.Report, r); err != nil {
			return err
		}
	}

	return convErr
}

func (a *app) runFollow(cmd *cobra.Command, args []string) error {
	settings, logger, err := a.setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conv := convert.New(kvline.NewParser(settings.Parser), settings.Policy, logger)
	f := follow.New(args[0], conv.NewStream(a.stdout), logger)
	f.FromStart = a.fromStart

	logger.Info("Following input", "path", args[0], "from_start", a.fromStart)
	return f.Run(ctx)
}

// execute runs the command line and returns the exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
