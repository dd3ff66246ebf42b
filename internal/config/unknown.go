package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxSuggestDistance is the largest edit distance at which an unknown key
// still gets a "did you mean?" suggestion.
const maxSuggestDistance = 3

// configKeys lists every key the config file accepts, read from the toml
// tags of Config's sections so the list cannot drift from the struct.
var configKeys = collectKeys(reflect.TypeFor[Config]())

func collectKeys(t reflect.Type) []string {
	var keys []string

	for i := range t.NumField() {
		f := t.Field(i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			keys = append(keys, collectKeys(f.Type)...)
			continue
		}

		if tag, _, _ := strings.Cut(f.Tag.Get("toml"), ","); tag != "" && tag != "-" {
			keys = append(keys, tag)
		}
	}

	slices.Sort(keys)

	return keys
}

// isConfigKey reports whether key is a valid top-level config key.
func isConfigKey(key string) bool {
	_, found := slices.BinarySearch(configKeys, key)
	return found
}

// checkUnknownKeys turns the keys the decoder did not consume into one
// error per key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	errs := make([]error, 0, len(undecoded))
	for _, key := range undecoded {
		errs = append(errs, buildKeyError(key.String()))
	}

	return errors.Join(errs...)
}

func buildKeyError(key string) error {
	if suggestion := closestKey(key); suggestion != "" {
		return fmt.Errorf("unknown config key %q, did you mean %q?", key, suggestion)
	}

	return fmt.Errorf("unknown config key %q", key)
}

// closestKey returns the nearest config key within maxSuggestDistance, or
// "". Ties go to the alphabetically first key.
func closestKey(unknown string) string {
	best, bestDist := "", maxSuggestDistance+1

	for _, k := range configKeys {
		if d := editDistance(unknown, k); d < bestDist {
			best, bestDist = k, d
		}
	}

	return best
}

// editDistance is the Levenshtein distance between a and b.
func editDistance(a, b string) int {
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := range len(a) {
		diag := row[0]
		row[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			diag, row[j+1] = row[j+1], min(row[j+1]+1, row[j]+1, diag+cost)
		}
	}

	return row[len(b)]
}
