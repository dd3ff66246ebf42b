package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tonimelisma/lighthouse/internal/api"
	"github.com/tonimelisma/lighthouse/internal/queue"
)

// Settings document formats accepted by "settings push" and printed by
// "settings".
const (
	formatTOML = "toml"
	formatYAML = "yaml"
	formatJSON = "json"
)

// fieldSeparator splits the parts of --add-team and --add-route values.
const fieldSeparator = "|"

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change dashboard settings",
		Long: `Show the settings document that will be in effect: the newest queued
change if there is one, otherwise the server's current settings, otherwise
the built-in defaults.

Changes are saved as a full replacement document and delivered on the next
sync. When several changes are queued, only the newest is sent.`,
		Args: cobra.NoArgs,
		RunE: runSettingsShow,
	}

	cmd.Flags().String("format", formatTOML, "output format: toml, yaml, or json")

	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsPushCmd())

	return cmd
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	format, _ := cmd.Flags().GetString("format")
	if cc.Flags.JSON {
		format = formatJSON
	}

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	session, err := queue.LoadSession(cmd.Context(), sess.Queue, sess.Client, cc.Logger)
	if err != nil {
		return err
	}

	cc.Statusf("# source: %s\n", describeSource(session.Source()))

	return encodeSettings(cc.Out, session.Settings(), format)
}

func describeSource(src queue.SettingsSource) string {
	switch src {
	case queue.SourceQueued:
		return "queued change, not yet delivered"
	case queue.SourceServer:
		return "server"
	default:
		return "built-in defaults"
	}
}

func newSettingsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Edit settings and queue the result",
		Long: `Start from the settings shown by "lighthouse settings", apply the given
edits, and queue the whole document for delivery.`,
		Example: `  lighthouse settings set --location "Boston, MA" --lat 42.36 --lon -71.06 --zones MAZ015
  lighthouse settings set --add-team "Celtics|nba|basketball|2" --remove-team Lakers
  lighthouse settings set --add-route "Commute|Cambridge, MA|Boston, MA" --theme dark`,
		Args: cobra.NoArgs,
		RunE: runSettingsSet,
	}

	f := cmd.Flags()
	f.String("location", "", "location name")
	f.Float64("lat", 0, "location latitude")
	f.Float64("lon", 0, "location longitude")
	f.String("zones", "", "comma-separated NWS zone codes")
	f.StringArray("add-team", nil, `team to track as "name|league|sport|espn_id" (repeatable)`)
	f.StringArray("remove-team", nil, "team name to stop tracking (repeatable)")
	f.StringArray("add-route", nil, `traffic route as "name|origin|destination" (repeatable)`)
	f.StringArray("remove-route", nil, "traffic route name to remove (repeatable)")
	f.String("theme", "", "reader theme: auto, light, or dark")
	f.Int("cache-hours", 0, "reader cache lifetime in hours")
	f.Int64Slice("block-source", nil, "news source id to hide (repeatable)")
	f.Int64Slice("unblock-source", nil, "news source id to show again (repeatable)")
	f.Bool("sync", false, "try to deliver queued actions right away")

	cmd.MarkFlagsRequiredTogether("lat", "lon")

	return cmd
}

func runSettingsSet(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	session, err := queue.LoadSession(cmd.Context(), sess.Queue, sess.Client, cc.Logger)
	if err != nil {
		return err
	}

	if err := applySettingsFlags(cmd, session); err != nil {
		return err
	}

	if !session.Dirty() {
		cc.Statusf("No changes\n")
		return nil
	}

	action, err := session.Save(cmd.Context(), sess.Queue)
	if err != nil {
		return err
	}

	if err := printQueued(cc, action, "settings"); err != nil {
		return err
	}

	return syncIfRequested(cmd, cc, sess)
}

// applySettingsFlags applies the edits named by the set flags, removals
// before additions so a team can be replaced in one command.
func applySettingsFlags(cmd *cobra.Command, session *queue.SettingsSession) error {
	f := cmd.Flags()

	if f.Changed("location") || f.Changed("lat") || f.Changed("zones") {
		loc := api.Location{}
		if cur := session.Settings().Location; cur != nil {
			loc = *cur
		}

		if f.Changed("location") {
			loc.Name, _ = f.GetString("location")
		}

		if f.Changed("lat") {
			loc.Lat, _ = f.GetFloat64("lat")
			loc.Lon, _ = f.GetFloat64("lon")
		}

		if f.Changed("zones") {
			loc.NWSZoneCodes, _ = f.GetString("zones")
		}

		session.SetLocation(loc)
	}

	removeTeams, _ := f.GetStringArray("remove-team")
	for _, name := range removeTeams {
		if !session.RemoveTeam(name) {
			return fmt.Errorf("no tracked team named %q", name)
		}
	}

	addTeams, _ := f.GetStringArray("add-team")
	for _, raw := range addTeams {
		team, err := parseTeam(raw)
		if err != nil {
			return err
		}

		session.AddTeam(team)
	}

	removeRoutes, _ := f.GetStringArray("remove-route")
	for _, name := range removeRoutes {
		if !session.RemoveRoute(name) {
			return fmt.Errorf("no traffic route named %q", name)
		}
	}

	addRoutes, _ := f.GetStringArray("add-route")
	for _, raw := range addRoutes {
		route, err := parseRoute(raw)
		if err != nil {
			return err
		}

		session.AddRoute(route)
	}

	if f.Changed("theme") {
		theme, _ := f.GetString("theme")
		session.SetReaderTheme(theme)
	}

	if f.Changed("cache-hours") {
		hours, _ := f.GetInt("cache-hours")
		session.SetReaderCacheHours(hours)
	}

	unblock, _ := f.GetInt64Slice("unblock-source")
	for _, id := range unblock {
		session.UnblockSource(id)
	}

	block, _ := f.GetInt64Slice("block-source")
	for _, id := range block {
		session.BlockSource(id)
	}

	return nil
}

// parseTeam parses "name|league|sport|espn_id".
func parseTeam(raw string) (api.SportsTeam, error) {
	parts := splitFields(raw)
	if len(parts) != 4 {
		return api.SportsTeam{}, fmt.Errorf("invalid team %q: want name|league|sport|espn_id", raw)
	}

	if _, err := strconv.ParseUint(parts[3], 10, 64); err != nil {
		return api.SportsTeam{}, fmt.Errorf("invalid team %q: espn_id must be numeric", raw)
	}

	return api.SportsTeam{Name: parts[0], League: parts[1], Sport: parts[2], ESPNID: parts[3]}, nil
}

// parseRoute parses "name|origin|destination".
func parseRoute(raw string) (api.TrafficRoute, error) {
	parts := splitFields(raw)
	if len(parts) != 3 {
		return api.TrafficRoute{}, fmt.Errorf("invalid route %q: want name|origin|destination", raw)
	}

	return api.TrafficRoute{Name: parts[0], Origin: parts[1], Destination: parts[2]}, nil
}

func splitFields(raw string) []string {
	parts := strings.Split(raw, fieldSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])

		if parts[i] == "" {
			return nil
		}
	}

	return parts
}

func newSettingsPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <file|->",
		Short: "Queue a settings document from a file",
		Long: `Read a complete settings document from a TOML, YAML, or JSON file and
queue it for delivery. It replaces every setting on the server, so lists
left out of the file are cleared. The format follows the file extension;
use --format when reading stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: runSettingsPush,
	}

	cmd.Flags().String("format", "", "document format: toml, yaml, or json (default: from extension)")
	cmd.Flags().Bool("sync", false, "try to deliver queued actions right away")

	return cmd
}

func runSettingsPush(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = formatFromPath(args[0])
	}

	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	doc, err := decodeSettings(data, format)
	if err != nil {
		return err
	}

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	action, err := sess.Queue.SaveSettings(cmd.Context(), doc)
	if err != nil {
		return err
	}

	if err := printQueued(cc, action, "settings"); err != nil {
		return err
	}

	return syncIfRequested(cmd, cc, sess)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	return data, nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".json":
		return formatJSON
	default:
		return formatTOML
	}
}

// decodeSettings parses a settings document, rejecting unknown fields so
// a typo does not silently clear a setting.
func decodeSettings(data []byte, format string) (api.Settings, error) {
	var doc api.Settings

	switch format {
	case formatTOML:
		md, err := toml.Decode(string(data), &doc)
		if err != nil {
			return api.Settings{}, fmt.Errorf("parsing TOML settings: %w", err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}

			return api.Settings{}, fmt.Errorf("unknown settings keys: %s", strings.Join(keys, ", "))
		}

	case formatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return api.Settings{}, fmt.Errorf("parsing YAML settings: %w", err)
		}

	case formatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&doc); err != nil {
			return api.Settings{}, fmt.Errorf("parsing JSON settings: %w", err)
		}

	default:
		return api.Settings{}, fmt.Errorf("unknown format %q: use toml, yaml, or json", format)
	}

	return doc, nil
}

// encodeSettings writes doc in the given format, in the same shape
// decodeSettings reads.
func encodeSettings(w io.Writer, doc api.Settings, format string) error {
	switch format {
	case formatTOML:
		return toml.NewEncoder(w).Encode(doc)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(doc); err != nil {
			return err
		}

		return enc.Close()
	case formatJSON:
		return printJSON(w, doc)
	default:
		return fmt.Errorf("unknown format %q: use toml, yaml, or json", format)
	}
}
