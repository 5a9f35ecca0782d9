package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/ssciwr/similarity-client-go/pkg/alerts"
)

var bannerColors = map[alerts.Color]lipgloss.Color{
	alerts.Dark:   lipgloss.Color("#343A40"),
	alerts.Gray:   lipgloss.Color("#6C757D"),
	alerts.Red:    lipgloss.Color("#DC3545"),
	alerts.Yellow: lipgloss.Color("#FFC107"),
	alerts.Green:  lipgloss.Color("#198754"),
	alerts.Orange: lipgloss.Color("#FD7E14"),
}

func bannerStyle(c alerts.Color) lipgloss.Style {
	bg, ok := bannerColors[c]
	if !ok {
		bg = bannerColors[alerts.Dark]
	}
	fg := lipgloss.Color("#FFFFFF")
	if c == alerts.Yellow {
		fg = lipgloss.Color("#212529")
	}
	return lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Foreground(fg).
		Background(bg)
}

func renderAlert(a alerts.Alert) string {
	label := strings.ToUpper(a.Color.String())
	return bannerStyle(a.Color).Render(label) + " " + a.Message
}

// bannerPrinter writes every alert once, as it arrives.
type bannerPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed int
}

func newBannerPrinter(w io.Writer) *bannerPrinter {
	return &bannerPrinter{w: w}
}

func (p *bannerPrinter) Print(all []alerts.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range all[min(p.printed, len(all)):] {
		_, _ = fmt.Fprintln(p.w, renderAlert(a))
	}
	p.printed = len(all)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
