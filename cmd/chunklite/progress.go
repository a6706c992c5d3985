package main

import (
	"io"

	"github.com/pterm/pterm"

	"github.com/chunklite/chunklite/internal/progress"
)

// progressBar renders transfer progress with pterm. The bar is created
// lazily on the first snapshot carrying a known total; snapshots with an
// unknown total are skipped so the bar never starts at zero.
type progressBar struct {
	title  string
	writer io.Writer
	bar    *pterm.ProgressbarPrinter
	loaded int64
}

func newProgressBar(title string, w io.Writer) *progressBar {
	return &progressBar{title: title, writer: w}
}

func (p *progressBar) observe(s progress.Snapshot) {
	if p.bar == nil {
		if s.BytesTotal <= 0 {
			return
		}
		p.bar, _ = pterm.DefaultProgressbar.
			WithTotal(int(s.BytesTotal)).
			WithTitle(p.title).
			WithWriter(p.writer).
			Start()
	}
	p.bar.Add(int(s.BytesLoaded - p.loaded))
	p.loaded = s.BytesLoaded
}

func (p *progressBar) stop() {
	if p.bar != nil {
		_, _ = p.bar.Stop()
	}
}
