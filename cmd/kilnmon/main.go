// Command kilnmon shows the live kiln status in the terminal.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/viper"

	"kiln_control/internal/config"
	"kiln_control/internal/monitor"
	"kiln_control/internal/service"
)

func main() {
	interval := flag.Duration("interval", time.Second, "refresh interval")
	statusPath := flag.String("status", "", "status block path (default from config)")
	flag.Parse()

	cfg, err := config.Load(viper.New())
	if err != nil {
		fmt.Fprintln(os.Stderr, "kilnmon:", err)
		os.Exit(1)
	}
	if *statusPath != "" {
		cfg.StatusPath = *statusPath
	}

	mon := service.NewMonitoringService(cfg.StatusPath)
	defer func() { _ = mon.Close() }()

	p := tea.NewProgram(monitor.NewModel(mon, *interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "kilnmon:", err)
		_ = mon.Close()
		os.Exit(1)
	}
}
