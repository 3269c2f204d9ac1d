package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/sensiblebit/certbatch/internal/batch"
)

// showProgress renders snapshots from ch until it closes. On a terminal it
// draws a progress bar on stderr; otherwise it logs at most one line per
// interval so piped output stays readable.
func showProgress(ch <-chan batch.Progress, total int, description string) {
	if noProgress || total == 0 {
		for range ch {
		}
		return
	}

	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		for p := range ch {
			_ = bar.Set(p.CurrentItem)
		}
		_ = bar.Finish()
		os.Stderr.WriteString("\n")
		return
	}

	const interval = 2 * time.Second
	var last time.Time
	for p := range ch {
		if p.CurrentItem < p.TotalItems && time.Since(last) < interval {
			continue
		}
		last = time.Now()
		slog.Info("progress", "done", p.CurrentItem, "total", p.TotalItems, "percent", int(p.PercentComplete), "file", p.CurrentFile)
	}
}
