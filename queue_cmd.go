package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/lighthouse/internal/queue"
	"github.com/tonimelisma/lighthouse/internal/store"
)

// actionTypes fixes the display order of queue counts.
var actionTypes = []store.ActionType{store.ActionRead, store.ActionRating, store.ActionSettings}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show actions waiting to be delivered",
		Args:  cobra.NoArgs,
		RunE:  runQueue,
	}

	cmd.Flags().Bool("list", false, "list every queued action")

	return cmd
}

// queueOutput is the JSON form of the queue summary.
type queueOutput struct {
	Total   int            `json:"total"`
	ByType  map[string]int `json:"by_type"`
	Oldest  string         `json:"oldest,omitempty"`
	DBBytes int64          `json:"db_bytes"`
	Actions []actionOutput `json:"actions,omitempty"`
}

type actionOutput struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	EnqueuedAt string `json:"enqueued_at"`
	Summary    string `json:"summary"`
}

func runQueue(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	stats, err := sess.Store.Stats(ctx)
	if err != nil {
		return err
	}

	var actions []store.Action

	if list, _ := cmd.Flags().GetBool("list"); list {
		actions, err = sess.Store.ListPendingActions(ctx)
		if err != nil {
			return err
		}
	}

	var dbBytes int64
	if info, statErr := os.Stat(sess.Store.Path()); statErr == nil {
		dbBytes = info.Size()
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, newQueueOutput(stats, actions, dbBytes))
	}

	rows := make([][]string, 0, len(actionTypes))
	for _, t := range actionTypes {
		rows = append(rows, []string{string(t), strconv.Itoa(stats.ByType[t])})
	}

	printTable(cc.Out, []string{"TYPE", "PENDING"}, rows)

	fmt.Fprintf(cc.Out, "\n%d queued, %s on disk", stats.Total, formatSize(dbBytes))

	if !stats.Oldest.IsZero() {
		fmt.Fprintf(cc.Out, ", oldest %s", formatAge(stats.Oldest, time.Now()))
	}

	fmt.Fprintln(cc.Out)

	if len(actions) > 0 {
		fmt.Fprintln(cc.Out)
		printTable(cc.Out, []string{"ID", "TYPE", "QUEUED", "ACTION"}, actionRows(actions))
	}

	return nil
}

func newQueueOutput(stats store.QueueStats, actions []store.Action, dbBytes int64) queueOutput {
	out := queueOutput{
		Total:   stats.Total,
		ByType:  make(map[string]int, len(actionTypes)),
		DBBytes: dbBytes,
	}

	for _, t := range actionTypes {
		out.ByType[string(t)] = stats.ByType[t]
	}

	if !stats.Oldest.IsZero() {
		out.Oldest = stats.Oldest.UTC().Format(time.RFC3339)
	}

	for _, a := range actions {
		out.Actions = append(out.Actions, actionOutput{
			ID:         a.ID,
			Type:       string(a.Type),
			EnqueuedAt: a.EnqueuedAt.UTC().Format(time.RFC3339),
			Summary:    summarizeAction(a),
		})
	}

	return out
}

func actionRows(actions []store.Action) [][]string {
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			string(a.Type),
			formatTime(a.EnqueuedAt),
			summarizeAction(a),
		})
	}

	return rows
}

// summarizeAction describes one action's payload for display.
func summarizeAction(a store.Action) string {
	switch a.Type {
	case store.ActionRead:
		if url, ok := queue.DecodeRead(a); ok {
			return url
		}
	case store.ActionRating:
		if r, ok := queue.DecodeRating(a); ok {
			return fmt.Sprintf("article %d: %s", r.ArticleID, ratingName(r.Rating))
		}
	case store.ActionSettings:
		if doc, ok := queue.DecodeSettings(a); ok {
			return settingsSummary(doc.Location != nil, len(doc.SportsTeams), len(doc.TrafficRoutes))
		}
	}

	return "(unreadable payload)"
}

func ratingName(r int) string {
	switch r {
	case queue.RatingUp:
		return "up"
	case queue.RatingDown:
		return "down"
	default:
		return "neutral"
	}
}

func settingsSummary(hasLocation bool, teams, routes int) string {
	loc := "no location"
	if hasLocation {
		loc = "location"
	}

	return fmt.Sprintf("full document (%s, %d teams, %d routes)", loc, teams, routes)
}

func newPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop queued actions that are too old to deliver",
		Long: `Delete queued actions enqueued more than --older-than ago, or every
queued action with --all. Dropped actions are never delivered.`,
		Args: cobra.NoArgs,
		RunE: runPurge,
	}

	cmd.Flags().Duration("older-than", 0, "drop actions queued longer ago than this (e.g. 72h)")
	cmd.Flags().Bool("all", false, "drop every queued action")
	cmd.MarkFlagsMutuallyExclusive("older-than", "all")
	cmd.MarkFlagsOneRequired("older-than", "all")

	return cmd
}

func runPurge(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	cutoff, err := purgeCutoff(cmd, time.Now())
	if err != nil {
		return err
	}

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	n, err := sess.Store.PurgeActionsOlderThan(cmd.Context(), cutoff)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, map[string]int64{"purged": n})
	}

	fmt.Fprintf(cc.Out, "Dropped %d queued action(s)\n", n)

	return nil
}

// purgeCutoff turns the purge flags into an enqueue-time cutoff.
func purgeCutoff(cmd *cobra.Command, now time.Time) (time.Time, error) {
	if all, _ := cmd.Flags().GetBool("all"); all {
		// Strictly after anything enqueued so far.
		return now.Add(time.Millisecond), nil
	}

	age, _ := cmd.Flags().GetDuration("older-than")
	if age <= 0 {
		return time.Time{}, fmt.Errorf("--older-than must be positive, got %s", age)
	}

	return now.Add(-age), nil
}
