// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"fmt"
	"sync"
	"time"

	"bichat/cli/internal/orchestrator"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner is a single-line progress indicator that follows orchestrator
// events. It hides the cursor while running. The zero value is not usable;
// call NewSpinner.
type Spinner struct {
	mu      sync.Mutex
	text    string
	area    *pterm.AreaPrinter
	stop    chan struct{}
	wg      sync.WaitGroup
	started time.Time
}

// NewSpinner returns a stopped spinner.
func NewSpinner() *Spinner { return &Spinner{} }

// Start shows the spinner with text. Calling Start on a running spinner only
// changes the text.
func (s *Spinner) Start(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	if s.area != nil {
		return
	}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return
	}
	s.area = area
	s.stop = make(chan struct{})
	s.started = time.Now()
	s.wg.Add(1)
	go s.spin(area, s.stop)
}

func (s *Spinner) spin(area *pterm.AreaPrinter, stop <-chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(120 * time.Millisecond)
	defer t.Stop()
	i := 0
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			i++
			s.mu.Lock()
			line := fmt.Sprintf("%s %s %s", spinnerFrames[i%len(spinnerFrames)], s.text,
				pterm.NewStyle(pterm.FgGray).Sprintf("%.0fs", time.Since(s.started).Seconds()))
			s.mu.Unlock()
			area.Update(line)
		}
	}
}

// Update changes the text of a running spinner.
func (s *Spinner) Update(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
}

// Stop removes the spinner line and restores the cursor.
func (s *Spinner) Stop() {
	s.mu.Lock()
	area, stop := s.area, s.stop
	s.area, s.stop = nil, nil
	s.mu.Unlock()
	if area == nil {
		return
	}
	close(stop)
	s.wg.Wait()
	_ = area.Stop()
	cursor.Show()
}

// OnEvent implements orchestrator.Observer. Terminal states stop the spinner.
func (s *Spinner) OnEvent(ev orchestrator.Event) {
	if ev.State.Terminal() {
		s.Stop()
		return
	}
	s.Start(ev.State.Label())
}
