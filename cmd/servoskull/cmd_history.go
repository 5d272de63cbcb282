package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/x/ansi"

	"github.com/elee1766/servoskull/src/storage"
	"github.com/elee1766/servoskull/src/theme"
)

// HistoryCmd browses the conversation archive
type HistoryCmd struct {
	List HistoryListCmd `cmd:"" default:"1" help:"List archived sessions"`
	Show HistoryShowCmd `cmd:"" help:"Print one archived session"`
}

// HistoryListCmd lists archived sessions, newest first
type HistoryListCmd struct {
	DBPath string `help:"Database path (defaults to config)"`
	Limit  int    `short:"n" default:"20" help:"Maximum sessions to list"`
	Width  int    `default:"60" help:"Truncate previews to this many columns"`
	JSON   bool   `help:"Print JSON"`
}

// Run executes the history list command
func (c *HistoryListCmd) Run(kctx *kong.Context, cli *CLI) error {
	ctx := context.Background()
	db, err := openArchive(ctx, cli, c.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := storage.ListSessions(ctx, db.DB(), c.Limit)
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(os.Stdout, sessions)
	}
	if len(sessions) == 0 {
		fmt.Println("No archived sessions")
		return nil
	}

	previews := make([]string, len(sessions))
	for i, s := range sessions {
		turns, err := storage.GetTurns(ctx, db.DB(), s.ID)
		if err != nil {
			return err
		}
		if len(turns) > 0 {
			previews[i] = turns[0].Content
		}
	}

	return renderSessionList(os.Stdout, sessions, previews, c.Width)
}

func renderSessionList(w io.Writer, sessions []*storage.SessionRecord, previews []string, width int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tARCHIVED\tTURNS\tFIRST MESSAGE")
	for i, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			s.ID,
			s.ArchivedAt.Local().Format(time.DateTime),
			s.TurnCount,
			preview(previews[i], width),
		)
	}
	return tw.Flush()
}

// preview flattens s onto one line and truncates it to width columns.
func preview(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

// HistoryShowCmd prints the turns of an archived session
type HistoryShowCmd struct {
	ID     string `arg:"" help:"Session ID"`
	DBPath string `help:"Database path (defaults to config)"`
	JSON   bool   `help:"Print JSON"`
}

// Run executes the history show command
func (c *HistoryShowCmd) Run(kctx *kong.Context, cli *CLI) error {
	ctx := context.Background()
	db, err := openArchive(ctx, cli, c.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := storage.GetSession(ctx, db.DB(), c.ID)
	if err != nil {
		return err
	}
	turns, err := storage.GetTurns(ctx, db.DB(), c.ID)
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(os.Stdout, struct {
			*storage.SessionRecord
			Turns []*storage.TurnRecord `json:"turns"`
		}{rec, turns})
	}

	renderTranscript(os.Stdout, theme.NewStyles(isTerminal(os.Stdout)), rec, turns)
	return nil
}

func renderTranscript(w io.Writer, styles theme.Styles, rec *storage.SessionRecord, turns []*storage.TurnRecord) {
	fmt.Fprintln(w, styles.Header.Render("Session "+rec.ID))
	fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("connection %s, %s to %s, %d turns",
		rec.ConnectionID,
		rec.CreatedAt.Local().Format(time.DateTime),
		rec.LastActivityAt.Local().Format(time.DateTime),
		rec.TurnCount,
	)))

	for _, t := range turns {
		fmt.Fprintln(w)
		label := styles.Role(t.Role).Render(t.Role)
		stamp := styles.Muted.Render(t.CreatedAt.Local().Format(time.TimeOnly))
		if t.HasImage {
			stamp += " " + styles.Muted.Render("[image attached]")
		}
		fmt.Fprintf(w, "%s %s\n", label, stamp)
		fmt.Fprintln(w, styles.Content.Render(t.Content))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
