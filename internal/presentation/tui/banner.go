package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the OSDL banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   ___  ____  ____  _     ", "#818cf8"},
		{"  / _ \\/ ___||  _ \\| |    ", "#a78bfa"},
		{" | | | \\___ \\| | | | |    ", "#c084fc"},
		{" | |_| |___) | |_| | |___ ", "#e879f9"},
		{"  \\___/|____/|____/|_____|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
