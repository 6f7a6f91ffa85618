package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// watchInputs renders an input again whenever it is written, until ctx is done.
// Rendering happens on the calling goroutine so the renderer is never shared.
func watchInputs(ctx context.Context, inputFiles []string, render func(p string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	inputs := map[string]string{}
	dirs := map[string]bool{}
	for _, p := range inputFiles {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		inputs[abs] = p
		dirs[filepath.Dir(abs)] = true
	}
	// editors often replace files, so the directories are watched rather than the files
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %q: %w", dir, err)
		}
	}

	pending := map[string]bool{}
	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if p, ok := inputs[abs]; ok {
				pending[p] = true
				debounce.Reset(watchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			softerr(err)

		case <-debounce.C:
			for p := range pending {
				render(p)
			}
			clear(pending)

		case <-ctx.Done():
			return nil
		}
	}
}

func runWatch(args renderArgs, inputFiles []string, r renderer) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ext := cargs.suffix + "." + args.ext
	if !cargs.quiet {
		fmt.Printf("Watching %d files, press Ctrl+C to stop\n", len(inputFiles))
	}
	err := watchInputs(ctx, inputFiles, func(p string) {
		if !cargs.quiet {
			fmt.Printf("Change detected in %q\n", filepath.ToSlash(filepath.Clean(p)))
		}
		softerr(renderFile(args, p, ext, r))
	})
	harderr(err)
}
