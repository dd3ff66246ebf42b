package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tonimelisma/lighthouse/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The report was already printed; only the exit status is left.
		if errors.Is(err, errSyncIncomplete) {
			os.Exit(2)
		}

		exitOnError(err)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(os.Stderr, "%s\n", hint)
	}

	os.Exit(1)
}

// errorHint suggests a next step for errors the user can act on.
func errorHint(err error) string {
	switch {
	case errors.Is(err, store.ErrStorageUnavailable):
		return "Offline mode is unavailable: the local queue could not be opened. Check --state-dir and its permissions."
	case errors.Is(err, store.ErrStorageQuotaExceeded):
		return "The offline queue is full. Run 'lighthouse sync' once the server is reachable, or 'lighthouse purge' to drop old actions."
	default:
		return ""
	}
}
