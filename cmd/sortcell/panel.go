//go:build !tinygo

package main

import (
	"github.com/spf13/cobra"

	"github.com/calvinmclean/sortcell/client"
	"github.com/calvinmclean/sortcell/logging"
	"github.com/calvinmclean/sortcell/ui"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Open the desktop control panel for a coordinator",
	RunE: func(cmd *cobra.Command, _ []string) error {
		panel := ui.NewControlPanel(logging.New("panel"))
		panel.Timeout = cfg.Coordinator.CallTimeout
		panel.Run(cmd.Context(), remoteFlags.addr, func(addr string) ui.Coordinator {
			return client.NewCoordinator(addr, cfg.Nodes.Retry)
		})
		return nil
	},
}
