// Package repoctx assembles a short textual description of the project a
// run operates on. The text seeds the pipeline context so spec and design
// prompts know what repository they are working in.
package repoctx

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// GitRunner provides the git operations used to describe the repository.
type GitRunner interface {
	Branch(dir string) (string, error)
	Log(dir string) (string, error)
	FilesChanged(dir string) (string, error)
}

// ExecGit implements GitRunner by calling git.
type ExecGit struct{}

func (g *ExecGit) Branch(dir string) (string, error) {
	return runGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
}

func (g *ExecGit) Log(dir string) (string, error) {
	return runGit(dir, "log", "--oneline", "-15")
}

func (g *ExecGit) FilesChanged(dir string) (string, error) {
	return runGit(dir, "status", "--short")
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

const readmeLimit = 2000

// Build describes the project at dir: top-level layout, README excerpt,
// and git state. Every section is best-effort; a directory that is not a
// git repository still yields a useful description.
func Build(dir string, git GitRunner) string {
	var b strings.Builder

	if names := topLevel(dir); len(names) > 0 {
		b.WriteString("Top-level files:\n")
		for _, n := range names {
			fmt.Fprintf(&b, "  %s\n", n)
		}
	}

	if readme := readmeExcerpt(dir); readme != "" {
		b.WriteString("\nREADME:\n")
		b.WriteString(readme)
		b.WriteString("\n")
	}

	if git != nil {
		if branch, err := git.Branch(dir); err == nil && branch != "" {
			fmt.Fprintf(&b, "\nBranch: %s\n", branch)
		}
		if log, err := git.Log(dir); err == nil && log != "" {
			b.WriteString("\nRecent commits:\n")
			b.WriteString(log)
			b.WriteString("\n")
		}
		if changed, err := git.FilesChanged(dir); err == nil && changed != "" {
			b.WriteString("\nUncommitted changes:\n")
			b.WriteString(changed)
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String())
}

func topLevel(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func readmeExcerpt(dir string) string {
	for _, name := range []string{"README.md", "README", "readme.md"} {
		data, err := os.ReadFile(dir + "/" + name)
		if err != nil {
			continue
		}
		text := string(data)
		if len(text) > readmeLimit {
			text = text[:readmeLimit] + "\n..."
		}
		return strings.TrimSpace(text)
	}
	return ""
}
