// Package denylist validates bridge commands against dangerous patterns
// before any process is launched.
package denylist

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Patterns holds the raw pattern strings.
type Patterns struct {
	Commands []string `yaml:"commands"`
}

// Denylist matches commands against configured substrings, case-insensitive,
// plus structural pipe-to-shell detection.
type Denylist struct {
	commands []string
	raw      Patterns
}

// New creates a Denylist from raw patterns.
func New(p Patterns) *Denylist {
	d := &Denylist{raw: p}
	for _, c := range p.Commands {
		d.commands = append(d.commands, strings.ToLower(c))
	}
	return d
}

// NewDefault creates a Denylist with the hardcoded default patterns.
func NewDefault() *Denylist {
	return New(DefaultPatterns)
}

// Load reads a denylist from a YAML file. Falls back to defaults if the
// path is empty or the file does not exist.
func Load(path string) (*Denylist, error) {
	if path == "" {
		return NewDefault(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, err
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return New(p), nil
}

// Check reports whether the command is blocked, with the matching reason.
func (d *Denylist) Check(command string) (bool, string) {
	lower := strings.ToLower(command)

	for _, pattern := range d.commands {
		if strings.Contains(lower, pattern) {
			return true, "command pattern blocked: " + pattern
		}
	}
	if isPipeToShell(lower) {
		return true, "pipe-to-shell execution detected"
	}
	return false, ""
}

// ToMap returns the raw patterns as a map for serialization.
func (d *Denylist) ToMap() map[string]any {
	return map[string]any{"commands": d.raw.Commands}
}

// isPipeToShell detects piped-to-shell patterns like "curl ... | sh" or
// "wget ... | bash".
func isPipeToShell(cmd string) bool {
	if !strings.Contains(cmd, "|") {
		return false
	}
	shells := []string{"sh", "bash", "zsh", "fish"}
	parts := strings.Split(cmd, "|")
	last := strings.TrimSpace(parts[len(parts)-1])
	for _, shell := range shells {
		if last == shell || strings.HasPrefix(last, shell+" ") {
			return true
		}
	}
	return false
}
