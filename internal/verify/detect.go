package verify

import (
	"os"
	"path/filepath"
)

// Resolve picks the verify commands for a project. Explicit overrides win,
// then configured commands, then project-type detection. An empty result
// means nothing to verify.
func Resolve(dir string, override, configured []string) []string {
	if len(override) > 0 {
		return override
	}
	if len(configured) > 0 {
		return configured
	}
	return Detect(dir)
}

// Detect inspects the project directory and returns build/test commands for
// the toolchain it finds.
func Detect(dir string) []string {
	if exists(dir, "go.mod") {
		return []string{"go build ./...", "go test ./..."}
	}
	if exists(dir, "package.json") {
		return []string{"npm test"}
	}
	if exists(dir, "Cargo.toml") {
		return []string{"cargo build", "cargo test"}
	}
	if exists(dir, "Makefile") {
		return []string{"make test"}
	}
	if exists(dir, "pyproject.toml") || exists(dir, "setup.py") {
		return []string{"python -m pytest"}
	}
	return nil
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
