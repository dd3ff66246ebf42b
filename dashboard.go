package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/lighthouse/internal/api"
	"github.com/tonimelisma/lighthouse/internal/dashboard"
)

func newDashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the dashboard, from the server or the offline snapshot",
		Long: `Fetch the dashboard from the server and save it as the offline snapshot.
When the server cannot be reached, show the last saved snapshot instead,
marked with its age.`,
		Args: cobra.NoArgs,
		RunE: runDashboard,
	}

	cmd.Flags().Bool("include-read", false, "include articles already read (overrides include_read)")
	cmd.Flags().Bool("articles", false, "list article ids and titles per section")

	return cmd
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	includeRead := cc.Cfg.IncludeRead
	if cmd.Flags().Changed("include-read") {
		includeRead, _ = cmd.Flags().GetBool("include-read")
	}

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	result, err := sess.Loader(includeRead).Load(cmd.Context())
	if err != nil {
		if errors.Is(err, dashboard.ErrNoCache) {
			return fmt.Errorf("server unreachable and no offline snapshot saved yet: %w", err)
		}

		return err
	}

	if !result.Live {
		cc.Statusf("Offline: showing snapshot from %s (%s)\n",
			formatTime(result.CapturedAt), formatAge(result.CapturedAt, time.Now()))
	}

	if cc.Flags.JSON {
		_, err := fmt.Fprintf(cc.Out, "%s\n", result.Payload)
		return err
	}

	dash, err := api.DecodeDashboard(result.Payload)
	if err != nil {
		return err
	}

	articles, _ := cmd.Flags().GetBool("articles")
	printDashboard(cc.Out, dash, articles)

	return nil
}

// printDashboard writes a text summary of the dashboard.
func printDashboard(w io.Writer, d *api.Dashboard, articles bool) {
	if wx := d.Weather; wx != nil {
		fmt.Fprintf(w, "Weather: %s", wx.Conditions)

		if wx.Temperature != nil {
			fmt.Fprintf(w, ", %.0f°", *wx.Temperature)
		}

		if wx.High != nil && wx.Low != nil {
			fmt.Fprintf(w, " (high %.0f°, low %.0f°)", *wx.High, *wx.Low)
		}

		fmt.Fprintln(w)

		if wx.DressSuggestion != "" {
			fmt.Fprintf(w, "  %s\n", wx.DressSuggestion)
		}
	}

	for _, alert := range d.Traffic {
		fmt.Fprintf(w, "Traffic: %s: %s [%s]\n", alert.Route, alert.Description, alert.Severity)
	}

	for _, g := range d.Games {
		sep := "@"
		if g.IsHome {
			sep = "vs"
		}

		fmt.Fprintf(w, "Game: %s %s %s, %s\n", g.Team, sep, g.Opponent, g.GameTime)
	}

	names := make([]string, 0, len(d.Sections))
	for name := range d.Sections {
		names = append(names, name)
	}

	sort.Strings(names)

	if len(names) > 0 {
		fmt.Fprintln(w)

		rows := make([][]string, 0, len(names))
		for _, name := range names {
			rows = append(rows, []string{name, strconv.Itoa(unreadCount(d.Sections[name])), strconv.Itoa(len(d.Sections[name]))})
		}

		printTable(w, []string{"SECTION", "UNREAD", "ARTICLES"}, rows)
	}

	if articles {
		for _, name := range names {
			if len(d.Sections[name]) == 0 {
				continue
			}

			fmt.Fprintf(w, "\n%s\n", name)

			for _, a := range d.Sections[name] {
				mark := " "
				if !a.IsRead {
					mark = "*"
				}

				fmt.Fprintf(w, "%s %6d  %s (%s)\n", mark, a.ID, a.Title, a.SourceName)
			}
		}
	}

	fmt.Fprintf(w, "\nTotal unread: %d\n", d.Stats.TotalUnread)
}

func unreadCount(articles []api.Article) int {
	n := 0

	for _, a := range articles {
		if !a.IsRead {
			n++
		}
	}

	return n
}
