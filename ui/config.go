package ui

import (
	"errors"
	"net/url"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const prefCoordinatorAddr = "coordinatorAddr"

// Config is what the panel remembers between runs
type Config struct {
	Addr string
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("missing coordinator address")
	}
	u, err := url.Parse(c.Addr)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return errors.New("coordinator address must be an http URL")
	}
	return nil
}

type ConfigWindow struct {
	app      fyne.App
	OnSubmit func(Config)
}

func NewConfigWindow(app fyne.App) *ConfigWindow {
	return &ConfigWindow{
		app: app,
	}
}

func (cw *ConfigWindow) load() Config {
	prefs := cw.app.Preferences()
	return Config{
		Addr: prefs.StringWithFallback(prefCoordinatorAddr, "http://process.ita"),
	}
}

func (cw *ConfigWindow) save(cfg Config) {
	cw.app.Preferences().SetString(prefCoordinatorAddr, cfg.Addr)
}

func (cw *ConfigWindow) Show() {
	window := cw.app.NewWindow("Sorting Cell - Connect")
	window.Resize(fyne.NewSize(400, 120))
	window.SetCloseIntercept(func() {
		// Treat window close as cancel
		window.Close()
		cw.app.Quit()
	})

	cfg := cw.load()

	addrEntry := widget.NewEntry()
	addrEntry.SetText(cfg.Addr)

	submitButton := widget.NewButton("Connect", func() {
		cw.save(cfg)
		if cw.OnSubmit != nil {
			cw.OnSubmit(cfg)
		}
		window.Close()
	})

	validateForm := func() {
		if cfg.Validate() == nil {
			submitButton.Enable()
		} else {
			submitButton.Disable()
		}
	}
	addrEntry.OnChanged = func(s string) {
		cfg.Addr = s
		validateForm()
	}
	validateForm()

	form := container.NewVBox(
		widget.NewCard("Coordinator", "", container.NewGridWithColumns(2,
			widget.NewLabel("Address:"),
			addrEntry,
		)),
		container.NewHBox(
			widget.NewButton("Cancel", func() {
				window.Close()
				cw.app.Quit()
			}),
			submitButton,
		),
	)

	window.SetContent(form)
	window.Show()
}
