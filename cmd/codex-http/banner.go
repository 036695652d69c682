package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/tsantana84/codex-http/internal/config"
)

var (
	bannerTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))
	bannerLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(12)
	bannerBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

func printBanner(w io.Writer, cfg *config.Config) {
	engine := "echo"
	if cfg.Engine.WorkerAddr != "" {
		engine = cfg.Engine.WorkerAddr
	}
	retrievalTarget := "disabled"
	if cfg.Retrieval.Enabled {
		retrievalTarget = cfg.Retrieval.BaseURL
	}

	lines := []string{
		bannerTitle.Render("codex-http " + version),
		row("listen", "http://"+cfg.Server.Addr()),
		row("engine", engine),
		row("retrieval", retrievalTarget),
		row("timeout", cfg.Session.Timeout.Std().String()),
	}
	if cfg.MCP.Enabled {
		lines = append(lines, row("mcp", cfg.MCP.BasePath+"/sse"))
	}
	fmt.Fprintln(w, bannerBox.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, bannerLabel.Render(label), value)
}
