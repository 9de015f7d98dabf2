package main

import (
	"fmt"
	"sync"
	"testing"

	"fyne.io/systray"
)

func TestSystrayApp_DevicesSnapshot(t *testing.T) {
	s := NewSystrayApp(NewAgent(defaultConfig()))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			items := make(map[string]*systray.MenuItem)
			items[fmt.Sprintf("dev-%d", i)] = &systray.MenuItem{}
			s.devMu.Lock()
			s.deviceItems = items
			s.devMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			for name := range s.devices() {
				_ = name
			}
		}
	}()
	wg.Wait()

	snap := s.devices()
	if len(snap) != 1 {
		t.Fatalf("Expected one device, got %d", len(snap))
	}
	snap["extra"] = &systray.MenuItem{}
	if len(s.devices()) != 1 {
		t.Error("Expected the snapshot to be independent of the menu state")
	}
}
