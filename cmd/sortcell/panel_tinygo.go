//go:build tinygo

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Open the desktop control panel for a coordinator",
	RunE: func(*cobra.Command, []string) error {
		return errors.New("the control panel is not available in firmware builds")
	},
}
