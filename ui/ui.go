// Package ui is a desktop control panel for the coordinator
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/calvinmclean/sortcell"
)

const (
	appID        = "com.github.calvinmclean.sortcell"
	historyItems = 10
)

type ControlPanel struct {
	Refresh time.Duration
	Timeout time.Duration

	logger *slog.Logger
}

func NewControlPanel(logger *slog.Logger) *ControlPanel {
	return &ControlPanel{
		Refresh: time.Second,
		Timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Run shows the address prompt, then the panel for the chosen coordinator. It blocks until the
// window is closed or ctx is done. newCoordinator is called with the submitted address
func (p *ControlPanel) Run(ctx context.Context, addr string, newCoordinator func(string) Coordinator) {
	application := app.NewWithID(appID)

	go func() {
		<-ctx.Done()
		fyne.Do(func() {
			application.Quit()
		})
	}()

	cfgWindow := NewConfigWindow(application)
	cfgWindow.OnSubmit = func(cfg Config) {
		p.show(ctx, application, cfg.Addr, newCoordinator(cfg.Addr))
	}

	if addr != "" {
		cfgWindow.save(Config{Addr: addr})
	}
	cfgWindow.Show()

	application.Run()
}

func (p *ControlPanel) show(ctx context.Context, application fyne.App, addr string, coordinator Coordinator) {
	ctx, cancel := context.WithCancel(ctx)

	window := application.NewWindow("Sorting Cell - " + addr)
	window.SetOnClosed(func() {
		cancel()
		application.Quit()
	})

	ctrl := &controllerWrapper{coordinator: coordinator, timeout: p.Timeout}

	cycleTimer := newTimer()
	cycleTimer.Go(ctx.Done())

	title := widget.NewLabelWithStyle("Connecting", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	details := widget.NewLabel("")

	var current panelState

	showErr := func(err error) {
		if err == nil {
			return
		}
		p.logger.Error("control panel request failed", "error", err)
		fyne.Do(func() {
			dialog.ShowError(err, window)
		})
	}

	startButton := widget.NewButton("Start", func() {
		go showErr(ctrl.Start(ctx))
	})
	startButton.Importance = widget.HighImportance

	stopButton := widget.NewButton(current.stopLabel(), func() {
		state := current
		go showErr(ctrl.ToggleStop(ctx, state))
	})
	stopButton.Importance = widget.DangerImportance

	logContent := widget.NewLabel("")
	logContent.Wrapping = fyne.TextWrapWord
	logScroll := container.NewVScroll(logContent)
	logScroll.SetMinSize(fyne.NewSize(400, 150))

	historyList := widget.NewSelect(nil, nil)
	historyList.PlaceHolder = "Select a cycle"
	historyList.OnChanged = func(option string) {
		id := optionID(option)
		if id == "" {
			return
		}
		go func() {
			text, err := ctrl.Logs(ctx, id)
			if err != nil {
				text = err.Error()
			}
			fyne.Do(func() {
				logContent.SetText(text)
				logScroll.ScrollToTop()
			})
		}()
	}

	logAccordion := widget.NewAccordion(
		widget.NewAccordionItem("Cycles", container.NewVBox(historyList, logScroll)),
	)

	refresh := func() {
		state := ctrl.Refresh(ctx)
		records, running, err := ctrl.Recent(ctx, historyItems)
		if err != nil {
			p.logger.Debug("error refreshing history", "error", err)
		}
		cycleTimer.Set(running)

		fyne.Do(func() {
			current = state
			title.SetText(state.title())
			details.SetText(state.details())
			cycleTimer.text.Color = state.colour()
			cycleTimer.text.Refresh()

			stopButton.SetText(state.stopLabel())
			if state.canStart() {
				startButton.Enable()
			} else {
				startButton.Disable()
			}

			if err == nil {
				historyList.SetOptions(recordOptions(records))
			}
		})
	}

	go func() {
		ticker := time.NewTicker(p.Refresh)
		defer ticker.Stop()
		for {
			refresh()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	content := container.NewVBox(
		container.NewHBox(
			container.NewPadded(title),
			layout.NewSpacer(),
			container.NewPadded(cycleTimer.text),
		),
		details,
		container.NewGridWithColumns(2, startButton, stopButton),
		logAccordion,
	)

	window.SetContent(content)
	window.Resize(fyne.NewSize(420, 300))
	window.Show()
}

// recordOptions labels each cycle for the history selector. The ID is always the last field
func recordOptions(records []sortcell.CycleRecord) []string {
	options := make([]string, 0, len(records))
	for _, r := range records {
		result := string(r.Result)
		if result == "" {
			result = "RUNNING"
		}
		options = append(options, fmt.Sprintf("%s %s %s %s", r.Start.Format(time.TimeOnly), r.Material, result, r.ID))
	}
	return options
}

func optionID(option string) string {
	fields := strings.Fields(option)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
