package logger

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/ui/style"
)

const (
	mainIndent  = "       "
	causeIndent = "      "
)

// formatErrorEntries renders an error chain as a main error followed by its
// causes, each with its metadata sorted by key.
func formatErrorEntries(entries []ErrorEntry) string {
	var lines []string

	for i, entry := range entries {
		msgLines := strings.Split(entry.Message, "\n")
		indent := causeIndent
		if i == 0 {
			lines = append(lines, "Error: "+msgLines[0])
			indent = mainIndent
		} else {
			if i == 1 {
				lines = append(lines, "", "  Caused by:")
			}
			lines = append(lines, "    "+style.Arrow+" "+msgLines[0])
		}
		for _, line := range msgLines[1:] {
			lines = append(lines, indent+line)
		}
		for _, key := range slices.Sorted(maps.Keys(entry.Metadata)) {
			lines = append(lines, fmt.Sprintf("%s%s: %v", indent, key, entry.Metadata[key]))
		}
	}

	return strings.Join(lines, "\n")
}
