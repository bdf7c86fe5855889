package main

import (
	"fmt"
	"os"

	"github.com/golang/glog"
)

// watchLoop runs one generation pass, then blocks regenerating whenever the
// graph file changes. Generation errors are reported and watching continues.
func watchLoop(opts genOptions) error {
	run := func() {
		if err := runGenerate(opts); err != nil {
			fmt.Fprintf(os.Stderr, "fenc: %v\n", err)
		}
	}
	run()

	w, err := newFileWatcher(func(path string) {
		glog.V(1).Infof("change detected: %s", path)
		run()
	})
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.AddFile(opts.graphPath); err != nil {
		return err
	}
	w.Watch()
	return nil
}
