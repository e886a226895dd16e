package config

import (
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// loadDotEnv loads the first existing file; variables already set win.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
		return
	}
}

// ExpandEnv replaces ${VAR} references; unset variables become empty.
func ExpandEnv(s string, getenv func(string) string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return getenv(envRef.FindStringSubmatch(m)[1])
	})
}

// expandNode substitutes scalar values only, so an expanded value can never
// change the document structure.
func expandNode(n *yaml.Node, getenv func(string) string) {
	if n == nil {
		return
	}
	if n.Kind == yaml.ScalarNode && envRef.MatchString(n.Value) {
		n.Value = ExpandEnv(n.Value, getenv)
		if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) == 0 {
			// re-resolve plain scalars so ${PORT} can decode into an int
			n.Tag = ""
		}
		return
	}
	for _, c := range n.Content {
		expandNode(c, getenv)
	}
}
