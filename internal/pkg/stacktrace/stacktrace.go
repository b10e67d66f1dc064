package stacktrace

import "strings"

// InternalPaths extracts the "internal/...go:line" frames of this module from a
// raw debug.Stack() dump, dropping runtime and third-party frames.
func InternalPaths(stack []byte) []string {
	var paths []string
	for line := range strings.Lines(string(stack)) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "/") && !strings.Contains(line, ":\\") {
			continue
		}

		_, rest, ok := strings.Cut(line, "/internal/")
		if !ok {
			continue
		}
		file, _, _ := strings.Cut(rest, " ")
		if !strings.Contains(file, ".go:") {
			continue
		}
		paths = append(paths, "internal/"+file)
	}
	return paths
}
