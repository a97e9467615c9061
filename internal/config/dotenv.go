package config

import (
	"os"
	"path/filepath"
	"strings"
)

// loadDotEnv applies KEY=VALUE pairs from the nearest .env file so local runs
// see the same settings the deployment injects.
func loadDotEnv() {
	path, ok := findDotEnvPath()
	if !ok {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		if key, value, ok := parseDotEnvLine(line); ok {
			_ = os.Setenv(key, value)
		}
	}
}

// findDotEnvPath walks from the working directory toward the filesystem root
// and returns the first .env it finds. The walk stops at a module or
// repository boundary so a stray file in a parent checkout is never loaded.
func findDotEnvPath() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}

	for {
		candidate := filepath.Join(dir, ".env")
		if isRegularFile(candidate) {
			return candidate, true
		}

		if isRegularFile(filepath.Join(dir, "go.mod")) || isDir(filepath.Join(dir, ".git")) {
			return "", false
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func parseDotEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	eq := strings.IndexByte(line, '=')
	if eq <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:eq])
	if key == "" {
		return "", "", false
	}

	raw := strings.TrimSpace(line[eq+1:])
	switch {
	case raw == "":
		return key, "", true
	case len(raw) >= 2 && raw[0] == raw[len(raw)-1] && (raw[0] == '"' || raw[0] == '\''):
		return key, raw[1 : len(raw)-1], true
	default:
		return key, strings.TrimSpace(stripInlineComment(raw)), true
	}
}

// stripInlineComment drops a trailing comment. A # only opens a comment at the
// start of the value or after whitespace, so values like pass#word survive.
func stripInlineComment(value string) string {
	for i := 0; i < len(value); i++ {
		if value[i] != '#' {
			continue
		}
		if i == 0 || value[i-1] == ' ' || value[i-1] == '\t' {
			return strings.TrimSpace(value[:i])
		}
	}
	return value
}

func isRegularFile(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	return st.Mode().IsRegular()
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	return st.IsDir()
}
