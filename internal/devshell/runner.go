// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/devshell/runner.go
// Summary: Runs a texelog view.App full screen on a local tcell screen.

package devshell

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/texelog/apps/texelog/view"
)

// Builder constructs the app once the screen exists.
type Builder func() (view.App, error)

var screenFactory = tcell.NewScreen

// SetScreenFactory overrides the screen factory used by Run. Passing nil restores the default.
func SetScreenFactory(factory func() (tcell.Screen, error)) {
	if factory == nil {
		screenFactory = tcell.NewScreen
		return
	}
	screenFactory = factory
}

// Run builds the app and drives it until Ctrl-C or until the app's Run returns.
func Run(builder Builder) error {
	app, err := builder()
	if err != nil {
		return err
	}

	screen, err := screenFactory()
	if err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("screen init: %w", err)
	}
	defer screen.Fini()
	screen.Clear()
	screen.EnableMouse()
	defer screen.DisableMouse()
	screen.EnablePaste()

	width, height := screen.Size()
	app.Resize(width, height)
	refreshCh := make(chan bool, 1)
	app.SetRefreshNotifier(refreshCh)

	draw := func() {
		screen.Clear()
		buffer := app.Render()
		for y, row := range buffer {
			for x, cell := range row {
				screen.SetContent(x, y, cell.Ch, nil, cell.Style)
			}
		}
		screen.Show()
	}

	draw()

	runErr := make(chan error, 1)
	go func() {
		runErr <- app.Run()
	}()
	defer app.Stop()

	go func() {
		for range refreshCh {
			screen.PostEvent(tcell.NewEventInterrupt(nil))
		}
	}()

	var paste []rune
	var inPaste bool

	for {
		select {
		case err := <-runErr:
			return err
		default:
		}

		ev := screen.PollEvent()
		switch tev := ev.(type) {
		case nil:
			return nil
		case *tcell.EventInterrupt:
			draw()
		case *tcell.EventResize:
			w, h := tev.Size()
			app.Resize(w, h)
			draw()
		case *tcell.EventPaste:
			if tev.Start() {
				inPaste = true
				paste = paste[:0]
			} else if tev.End() {
				inPaste = false
				if ph, ok := app.(interface{ HandlePaste(string) }); ok && len(paste) > 0 {
					ph.HandlePaste(string(paste))
					draw()
				}
				paste = paste[:0]
			}
		case *tcell.EventKey:
			if tev.Key() == tcell.KeyCtrlC {
				return nil
			}
			if inPaste {
				// Pasted newlines would submit a prompt; flatten them.
				switch tev.Key() {
				case tcell.KeyRune:
					paste = append(paste, tev.Rune())
				case tcell.KeyEnter, tcell.KeyLF:
					paste = append(paste, ' ')
				}
				continue
			}
			app.HandleKey(tev)
			draw()
		case *tcell.EventMouse:
			if mh, ok := app.(interface{ HandleMouse(*tcell.EventMouse) }); ok {
				mh.HandleMouse(tev)
				draw()
			}
		}
	}
}
