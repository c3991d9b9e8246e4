package ui

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

// timer shows the time since the current cycle started. A zero start shows a blank clock
type timer struct {
	startTime time.Time
	mtx       sync.Mutex
	text      *canvas.Text
}

func newTimer() *timer {
	return &timer{
		text: canvas.NewText(formatElapsed(0), nil),
	}
}

func (t *timer) Set(start time.Time) {
	t.mtx.Lock()
	t.startTime = start
	t.mtx.Unlock()
}

// Go refreshes the text every second until done is closed
func (t *timer) Go(done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			t.mtx.Lock()
			var elapsed time.Duration
			if !t.startTime.IsZero() {
				elapsed = time.Since(t.startTime)
			}
			t.mtx.Unlock()

			fyne.Do(func() {
				t.text.Text = formatElapsed(elapsed)
				t.text.Refresh()
			})
		}
	}()
}

func formatElapsed(elapsed time.Duration) string {
	minutes := int(elapsed.Minutes())
	seconds := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
