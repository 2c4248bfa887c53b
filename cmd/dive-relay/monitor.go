package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ngmaloney/dive-relay/internal/ui"
)

var monitorEndpoint string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the traffic of a running relay in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := monitorEndpoint
		if endpoint == "" {
			endpoint = watchEndpoint(cfg.ListenAddr)
		}

		p := tea.NewProgram(ui.NewModel(endpoint), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running monitor: %w", err)
		}
		return nil
	},
}

// watchEndpoint turns a listen address into the local websocket URL
func watchEndpoint(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "ws://" + addr + "/watch"
}

func init() {
	monitorCmd.Flags().StringVar(&monitorEndpoint, "endpoint", "", "Relay websocket URL (default derived from LISTEN_ADDR)")
}
