package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

const (
	envURL    = "SIGNALCTL_URL"
	envAPIKey = "SIGNALCTL_API_KEY"

	defaultURL = "http://127.0.0.1:8080"
)

// Version is the client build, set by cmd/signalctl.
var Version = "dev"

type options struct {
	url     string
	apiKey  string
	timeout time.Duration
	noColor bool
}

func (o *options) client() (*Client, error) {
	return NewClient(o.url, o.apiKey)
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// NewRootCommand builds the signalctl command tree. Output goes to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "signalctl",
		Short:         "Inspect a running room-signal server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.Disable()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.url, "url", envOr(envURL, defaultURL), "server base URL (env "+envURL+")")
	pf.StringVar(&opts.apiKey, "api-key", os.Getenv(envAPIKey), "API key or JWT sent as X-API-Key (env "+envAPIKey+")")
	pf.DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall request timeout")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newRoomsCommand(opts),
		newProbeCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

func newRoomsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List active rooms and their members.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			report, err := c.Rooms(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, color.New(color.FgGreen, color.OpBold).Sprintf("%d active room(s)", report.TotalRooms))
			if report.TotalRooms == 0 {
				return nil
			}
			RenderRooms(out, report, time.Now())
			return nil
		},
	}
}

func newProbeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Open a signaling connection and measure one liveness round trip.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := c.Probe(ctx)
			out := cmd.OutOrStdout()
			if err != nil {
				fmt.Fprintln(out, color.Red.Sprint("FAIL"), err)
				return errProbeFailed
			}
			fmt.Fprintf(out, "%s connection=%s connect=%s rtt=%s\n",
				color.Green.Sprint("OK"),
				res.ConnectionID,
				res.Connect.Round(time.Microsecond),
				res.RTT.Round(time.Microsecond),
			)
			return nil
		},
	}
}

var errProbeFailed = errors.New("probe failed")

func newVersionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client and server versions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "client: %s\n", Version)

			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			info, err := c.Version(ctx)
			if err != nil {
				fmt.Fprintf(out, "server: %s\n", color.Yellow.Sprintf("unavailable (%v)", err))
				return nil
			}
			fmt.Fprintf(out, "server: commit=%s buildTime=%s\n", orDash(info.Commit), orDash(info.BuildTime))
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
