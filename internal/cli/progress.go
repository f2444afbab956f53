package cli

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// NewProgress creates a progress bar on w for total items.
func NewProgress(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Tracker adapts a progress bar to a done/total callback. The callback may
// be called from several goroutines; the bar serializes updates.
func Tracker(bar *progressbar.ProgressBar) func(done, total int) {
	return func(done, _ int) {
		_ = bar.Set(done)
	}
}
