package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/client"
)

var remoteFlags struct {
	addr  string
	clear bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the coordinator state and node health",
	RunE:  runStatus,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coordinator's cycle loop",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Set the coordinator's stop flag, or clear it with --clear",
	RunE:  runStop,
}

var historyCmd = &cobra.Command{
	Use:   "history [cycle-id]",
	Short: "List recent cycles, or show one cycle's log",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, startCmd, stopCmd, historyCmd, panelCmd} {
		c.Flags().StringVar(&remoteFlags.addr, "addr", "", "Coordinator base URL (default from config)")
	}
	stopCmd.Flags().BoolVar(&remoteFlags.clear, "clear", false, "Clear the stop flag instead of setting it")
}

func coordinatorClient() *client.Coordinator {
	addr := remoteFlags.addr
	if addr == "" {
		addr = cfg.Nodes.Coordinator
	}
	return client.NewCoordinator(addr, cfg.Nodes.Retry)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	status, err := coordinatorClient().Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("error getting status: %w", err)
	}
	printStatus(cmd.OutOrStdout(), status)
	return nil
}

func printStatus(out io.Writer, status sortcell.Status) {
	fmt.Fprintf(out, "State:    %s\n", status.State)
	fmt.Fprintf(out, "Stopped:  %t\n", status.Stopped)
	fmt.Fprintf(out, "Running:  %t\n", status.Running)
	fmt.Fprintf(out, "Position: %s\n", status.Position)
	fmt.Fprintf(out, "Cycles:   %d\n", status.Cycles)
	if status.LastID != "" {
		fmt.Fprintf(out, "Last:     %s\n", status.LastID)
	}

	names := make([]string, 0, len(status.Nodes))
	for name := range status.Nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s = %s\n", name, status.Nodes[name])
	}
}

func runStart(cmd *cobra.Command, _ []string) error {
	err := coordinatorClient().Start(cmd.Context())
	if err != nil {
		return fmt.Errorf("error starting: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}

func runStop(cmd *cobra.Command, _ []string) error {
	err := coordinatorClient().SetStop(cmd.Context(), !remoteFlags.clear)
	if err != nil {
		return fmt.Errorf("error setting stop: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	c := coordinatorClient()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		logs, err := c.Logs(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error getting logs: %w", err)
		}
		fmt.Fprint(out, logs)
		return nil
	}

	records, err := c.History(cmd.Context())
	if err != nil {
		return fmt.Errorf("error getting history: %w", err)
	}
	printHistory(out, records)
	return nil
}

func printHistory(out io.Writer, records []sortcell.CycleRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No cycles recorded")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join([]string{"ID", "START", "MATERIAL", "RESULT", "DURATION"}, "\t"))
	for _, r := range records {
		result := string(r.Result)
		if result == "" {
			result = "RUNNING"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Start.Format(time.DateTime),
			r.Material,
			result,
			r.Duration().Round(time.Millisecond),
		)
	}
	_ = w.Flush()
}
