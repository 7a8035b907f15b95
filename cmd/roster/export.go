package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/robby/roster/internal/bridge"
	"github.com/robby/roster/internal/store"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export GROUP...",
		Short: "Fetch and export groups without the interactive UI",
		Long: `export fetches every named group and writes <out>/<group>.csv for each.

It needs a signed-in session; run roster once interactively to sign in.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExport,
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	_, b, cleanup, err := start(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	if !b.Authorized() {
		return errors.New("not signed in: run roster without arguments to sign in first")
	}

	results, err := exportGroups(cmd.Context(), b, store.ParseGroups(strings.Join(args, "\n")))
	printSummary(cmd.OutOrStdout(), results)
	return err
}

// exportGroups fetches and exports every group concurrently through the bridge.
// Every group is attempted; the first failure is returned.
func exportGroups(ctx context.Context, b *bridge.Bridge, groups []string) (*store.Store, error) {
	s := store.New()
	s.Add(groups...)
	var mu sync.Mutex

	var g errgroup.Group
	for _, name := range groups {
		g.Go(func() error {
			err := exportGroup(ctx, b, name, s, &mu)
			if err != nil {
				mu.Lock()
				_ = s.MarkFailed(name, err)
				mu.Unlock()
			}
			return err
		})
	}
	return s, g.Wait()
}

func exportGroup(ctx context.Context, b *bridge.Bridge, name string, s *store.Store, mu *sync.Mutex) error {
	reply, err := b.Submit(bridge.FetchMembers{Group: name})
	if err != nil {
		return err
	}
	out, err := reply.Wait(ctx)
	if err != nil {
		return err
	}
	if !out.OK() {
		return fmt.Errorf("%s: %w", name, out.Err)
	}
	mu.Lock()
	_ = s.SetMembers(name, out.Members, out.Total, out.Partial())
	mu.Unlock()

	reply, err = b.Submit(bridge.ExportMembers{Group: name, Rows: slices.Values(out.Members)})
	if err != nil {
		return err
	}
	exported, err := reply.Wait(ctx)
	if err != nil {
		return err
	}
	if !exported.OK() {
		return fmt.Errorf("%s: %w", name, exported.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	return s.MarkExported(name, exported.Path)
}

func printSummary(w io.Writer, s *store.Store) {
	for _, g := range s.Groups() {
		switch g.Status {
		case store.StatusExported:
			line := fmt.Sprintf("%-28s %d members -> %s", g.Name, len(g.Members), g.Path)
			if g.Partial {
				line += fmt.Sprintf(" (partial, server reported %d)", g.Total)
			}
			fmt.Fprintln(w, line)
		case store.StatusFailed:
			fmt.Fprintf(w, "%-28s failed: %v\n", g.Name, g.Err)
		default:
			fmt.Fprintf(w, "%-28s %s\n", g.Name, g.Status)
		}
	}
}
