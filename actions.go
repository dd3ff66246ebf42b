package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/lighthouse/internal/queue"
	"github.com/tonimelisma/lighthouse/internal/store"
)

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <url>",
		Short: "Mark an article as read",
		Long: `Queue a read mark for the article at <url>. The mark is stored locally
and delivered on the next sync, so this works without a connection.`,
		Args: cobra.ExactArgs(1),
		RunE: runRead,
	}

	cmd.Flags().Bool("sync", false, "try to deliver queued actions right away")

	return cmd
}

func runRead(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	action, err := sess.Queue.MarkRead(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if err := printQueued(cc, action, "read mark"); err != nil {
		return err
	}

	return syncIfRequested(cmd, cc, sess)
}

func newRateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate <article-id> <up|down|neutral>",
		Short: "Rate an article",
		Long: `Queue a rating for an article. Ratings are up (1), down (-1), or
neutral (0); numeric forms are accepted too. The rating is stored locally
and delivered on the next sync.`,
		Example: `  lighthouse rate 42 up
  lighthouse rate 42 -- -1`,
		Args: cobra.ExactArgs(2),
		RunE: runRate,
	}

	cmd.Flags().Bool("sync", false, "try to deliver queued actions right away")

	return cmd
}

func runRate(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	articleID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid article id %q", args[0])
	}

	rating, err := parseRating(args[1])
	if err != nil {
		return err
	}

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	action, err := sess.Queue.Rate(cmd.Context(), articleID, rating)
	if err != nil {
		return err
	}

	if err := printQueued(cc, action, "rating"); err != nil {
		return err
	}

	return syncIfRequested(cmd, cc, sess)
}

// parseRating accepts up/down/neutral (and +/-/0 style numerics).
func parseRating(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "+1", "1", "like":
		return queue.RatingUp, nil
	case "down", "-1", "dislike":
		return queue.RatingDown, nil
	case "neutral", "0", "clear":
		return queue.RatingNeutral, nil
	default:
		return 0, fmt.Errorf("invalid rating %q: use up, down, or neutral", s)
	}
}

// queuedOutput is the JSON form of a freshly queued action.
type queuedOutput struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	EnqueuedAt string `json:"enqueued_at"`
}

func printQueued(cc *CLIContext, action store.Action, what string) error {
	if cc.Flags.JSON {
		return printJSON(cc.Out, queuedOutput{
			ID:         action.ID,
			Type:       string(action.Type),
			EnqueuedAt: action.EnqueuedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}

	cc.Statusf("Queued %s (action %d)\n", what, action.ID)

	return nil
}
