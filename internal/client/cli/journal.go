package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/common"
)

// now is a test seam for "today".
var now = time.Now

func (a *App) dateArg(args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return getSimpleText(a.reader, prompt, os.Stdout)
}

// Write stores the entry of a day, today by default.
func (a *App) Write(ctx context.Context, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	date := now().Format(common.DateLayout)
	if len(args) > 0 {
		date = args[0]
	}

	content, err := getMultiline(a.reader, fmt.Sprintf("Entry for %s", date), os.Stdout)
	if err != nil {
		return err
	}

	if _, err := a.journal.Save(ctx, date, content); err != nil {
		return err
	}
	if n := a.journal.Pending(ctx); n > 0 {
		printlnFn(fmt.Sprintf("Saved locally, %d change(s) waiting for the server.", n))
		return nil
	}
	printlnFn("Saved.")
	return nil
}

func (a *App) Read(ctx context.Context, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	date, err := a.dateArg(args, "Date (YYYY-MM-DD)")
	if err != nil {
		return err
	}

	e, err := a.journal.Read(ctx, date)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("== %s (updated %s)", e.Date, e.UpdatedAt.Local().Format(time.DateTime)))
	printlnFn(e.Content)
	return nil
}

func (a *App) List(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	items, err := a.journal.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		printlnFn("No entries.")
		return nil
	}
	for _, it := range items {
		mark := ""
		if it.Pending {
			mark = " *"
		}
		printlnFn(fmt.Sprintf("%s%s  %s", it.Date, mark, it.Preview))
	}
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	date, err := a.dateArg(args, "Date (YYYY-MM-DD)")
	if err != nil {
		return err
	}
	if err := a.journal.Delete(ctx, date); err != nil {
		return err
	}
	printlnFn("Deleted.")
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	n := a.journal.Sync(ctx)
	printlnFn(fmt.Sprintf("Synced %d change(s), %d pending.", n, a.journal.Pending(ctx)))
	return nil
}

// Summary stores a summary of the days from..to.
func (a *App) Summary(ctx context.Context, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if len(args) != 2 {
		printlnFn("Usage: summary <from> <to>")
		return nil
	}

	text, err := getMultiline(a.reader, fmt.Sprintf("Summary for %s..%s", args[0], args[1]), os.Stdout)
	if err != nil {
		return err
	}
	if _, err := a.journal.SaveSummary(ctx, args[0], args[1], text); err != nil {
		return err
	}
	printlnFn("Summary saved.")
	return nil
}

func (a *App) Summaries(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	items, err := a.journal.Summaries(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		printlnFn("No summaries.")
		return nil
	}
	for _, s := range items {
		printlnFn(fmt.Sprintf("== %s..%s", s.From, s.To))
		printlnFn(s.Text)
	}
	return nil
}
