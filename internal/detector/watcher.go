package detector

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchModelDir reinitializes the detector when model files change on disk,
// so an operator can drop in a new ONNX model without restarting the server.
// Falls back to a 60s polling reload if fsnotify cannot watch the directory.
func WatchModelDir(ctx context.Context, d Detector, modelDir string) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("[Detector] Model watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(modelDir); err != nil {
		log.Printf("[Detector] Model watcher: cannot watch %s (%v), falling back to polling", modelDir, err)
		usePolling = true
		watcher.Close()
	}

	reload := func() {
		if err := d.Initialize(ctx); err != nil {
			log.Printf("[Detector] Model reload failed: %v", err)
		} else {
			log.Printf("[Detector] Model reloaded from %s", modelDir)
		}
	}

	if usePolling {
		go func() {
			ticker := time.NewTicker(60 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					reload()
				}
			}
		}()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Ext(event.Name) != ".onnx" {
					continue
				}
				log.Printf("[Detector] Model file changed: %s", event.Name)
				// Let the writer finish flushing before reloading.
				time.Sleep(100 * time.Millisecond)
				reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Detector] Model watcher error: %v", err)
			}
		}
	}()
}
