// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/quacklock/internal/sink"
)

type eventsOptions struct {
	limit  int
	asJSON bool
}

func newEventsCmd(opts *rootOptions) *cobra.Command {
	eo := &eventsOptions{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print journaled detection events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.Sink.Journal.Path == "" {
				return fmt.Errorf("sink.journal.path is not set")
			}

			journal, err := sink.OpenJournal(sink.JournalConfig{
				Path:     cfg.Sink.Journal.Path,
				ReadOnly: true,
			})
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer journal.Close()

			return printEvents(cmd.Context(), journal, eo, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&eo.limit, "limit", sink.DefaultListLimit, "maximum number of events")
	cmd.Flags().BoolVar(&eo.asJSON, "json", false, "print JSON lines instead of text")
	return cmd
}

type eventLister interface {
	List(ctx context.Context, limit int) ([]sink.JournalEntry, error)
}

func printEvents(ctx context.Context, journal eventLister, eo *eventsOptions, w io.Writer) error {
	if eo.limit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}
	entries, err := journal.List(ctx, eo.limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for i := range entries {
		if eo.asJSON {
			err = enc.Encode(entries[i])
		} else {
			_, err = fmt.Fprintln(w, sink.FormatEventLine(&entries[i].DetectionEvent))
		}
		if err != nil {
			return err
		}
	}
	return nil
}
