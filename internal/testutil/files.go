package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// WriteFile writes content to name under a fresh temp dir and returns the path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// WriteRecognizerFile writes a recognizer YAML with a single pattern
// recognizer for entity and returns its path.
func WriteRecognizerFile(t *testing.T, name, entity, regex string, score float64) string {
	t.Helper()
	content := "recognizers:\n" +
		"  - name: \"" + name + "\"\n" +
		"    supported_entity: \"" + entity + "\"\n" +
		"    patterns:\n" +
		"      - name: \"" + name + " pattern\"\n" +
		"        regex: '" + regex + "'\n" +
		"        score: " + strconv.FormatFloat(score, 'f', -1, 64) + "\n"
	return WriteFile(t, "patterns.yaml", content)
}
