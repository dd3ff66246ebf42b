// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// ValidateAllowlist crashes the process unless the server named by
// serverEnvVar appears in LIGHTHOUSE_ALLOWED_TEST_SERVERS. E2E tests
// replace settings and mark articles read, so they must never run against
// a server nobody opted in.
func ValidateAllowlist(serverEnvVar string) string {
	allowlist := os.Getenv("LIGHTHOUSE_ALLOWED_TEST_SERVERS")
	if allowlist == "" {
		fmt.Fprintln(os.Stderr, "FATAL: LIGHTHOUSE_ALLOWED_TEST_SERVERS not set")
		fmt.Fprintln(os.Stderr, "Set it in .env or as an environment variable.")
		fmt.Fprintln(os.Stderr, "Example: LIGHTHOUSE_ALLOWED_TEST_SERVERS=http://localhost:8000")
		os.Exit(1)
	}

	server := strings.TrimRight(os.Getenv(serverEnvVar), "/")
	if server == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", serverEnvVar)
		os.Exit(1)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimRight(strings.TrimSpace(a), "/") == server {
			return server
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not in LIGHTHOUSE_ALLOWED_TEST_SERVERS=%q\n",
		serverEnvVar, server, allowlist)
	os.Exit(1)

	return ""
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
