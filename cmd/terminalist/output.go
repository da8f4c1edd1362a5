package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// printStructured writes v as JSON or YAML. It reports false for the text
// format, which each command renders itself.
func printStructured(format string, v any) bool {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fatalf("failed to encode JSON: %v", err)
		}
		return true
	case formatYAML:
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			fatalf("failed to encode YAML: %v", err)
		}
		if err := enc.Close(); err != nil {
			fatalf("failed to encode YAML: %v", err)
		}
		return true
	case formatText, "":
		return false
	}
	fatalf("unknown format %q (want text, json or yaml)", format)
	return false
}

func checkFormat(format string) {
	switch format {
	case formatText, formatJSON, formatYAML:
	default:
		fatalf("unknown format %q (want text, json or yaml)", format)
	}
}

// plural returns "1 task" or "2 tasks".
func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
