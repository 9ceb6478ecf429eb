package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadUsernames reads a usernames list from path.
// YAML/JSON files hold either a plain list or a `usernames:` key; any other
// file is read as newline or comma separated text where `#` starts a comment.
// Entries are returned as written; normalization happens before dispatch.
func LoadUsernames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read usernames file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return parseStructuredUsernames(data)
	default:
		return parseTextUsernames(data), nil
	}
}

func parseStructuredUsernames(data []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Usernames []string `yaml:"usernames"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse usernames file: %w", err)
	}
	return doc.Usernames, nil
}

// parseTextUsernames reads newline separated lines of any length
func parseTextUsernames(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		out = append(out, SplitUsernames(line)...)
	}
	return out
}

// SplitUsernames splits a comma separated list, dropping blank entries
func SplitUsernames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return out
}
