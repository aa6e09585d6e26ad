package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	store "github.com/goliatone/go-store"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <definition>",
		Short: "Follow a definition file and print every published state",
		Long: `Load a store definition and print its state, then replace the state
each time the file's state section changes on disk. Computeds are declared
once at startup; edits to them need a restart.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runWatch(ctx, cmd, rootOpts, args[0], nil)
		},
	}
}

// runWatch blocks until ctx is done. ready, when set, is called once the
// file watcher is registered.
func runWatch(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, path string, ready func()) error {
	formatter := newFormatter(rootOpts, cmd)

	doc, err := LoadDocument(path)
	if err != nil {
		return err
	}
	st, err := NewStore(doc, newLogger(rootOpts, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	var mu sync.Mutex
	report := func(snap *store.Snapshot, changed []string) {
		mu.Lock()
		defer mu.Unlock()
		r := NewStateReport(st, snap, st.Computeds())
		r.Changed = changed
		if err := formatter.Report(r); err != nil {
			formatter.VerboseLog("report failed: %v", err)
		}
	}
	report(st.Get(), nil)

	unsubscribe, err := st.Subscribe(store.SubscriberFunc(func(next, prev *store.Snapshot) {
		report(next, next.Diff(prev))
	}))
	if err != nil {
		return WrapExitError(ExitFailure, "subscribe", err)
	}
	defer unsubscribe()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "create file watcher", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of
	// writing to it.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return WrapExitError(ExitCommandError, "watch definition", err)
	}
	formatter.VerboseLog("watching %s", target)
	if ready != nil {
		ready()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if err := reload(ctx, st, target); err != nil {
				formatter.VerboseLog("reload failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			formatter.VerboseLog("watch error: %v", err)
		}
	}
}

func reload(ctx context.Context, st *store.Store, path string) error {
	doc, err := LoadDocument(path)
	if err != nil {
		return err
	}
	return st.Set(ctx, doc.State)
}
