//go:build !linux

package main

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileWatcher falls back to modification-time polling where inotify is not
// available.
type fileWatcher struct {
	watchMap    map[string]time.Time
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
	stopChan    chan struct{}
}

func newFileWatcher(onChange func(string)) (*fileWatcher, error) {
	return &fileWatcher{
		watchMap:    make(map[string]time.Time),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
		stopChan:    make(chan struct{}),
	}, nil
}

func (fw *fileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	fw.mu.Lock()
	fw.watchMap[absPath] = time.Time{}
	fw.mu.Unlock()
	return nil
}

func (fw *fileWatcher) Watch() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fw.checkFiles()
		case <-fw.stopChan:
			return
		}
	}
}

func (fw *fileWatcher) checkFiles() {
	fw.mu.Lock()
	paths := make([]string, 0, len(fw.watchMap))
	for path := range fw.watchMap {
		paths = append(paths, path)
	}
	fw.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		fw.mu.Lock()
		last := fw.watchMap[path]
		if !last.IsZero() && info.ModTime().After(last) {
			fw.debounced(path)
		}
		fw.watchMap[path] = info.ModTime()
		fw.mu.Unlock()
	}
}

func (fw *fileWatcher) debounced(path string) {
	if timer, exists := fw.debounceMap[path]; exists {
		timer.Stop()
	}
	fw.debounceMap[path] = time.AfterFunc(500*time.Millisecond, func() {
		fw.onChange(path)
		fw.mu.Lock()
		delete(fw.debounceMap, path)
		fw.mu.Unlock()
	})
}

func (fw *fileWatcher) Close() error {
	close(fw.stopChan)
	return nil
}
