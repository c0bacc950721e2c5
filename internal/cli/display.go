package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/worldland/gpuwatch/internal/domain"
)

// PrintHeader prints a section header
func PrintHeader(w io.Writer, title string) {
	fmt.Fprintf(w, "\n=== %s ===\n", title)
}

// PrintField prints a labeled field
func PrintField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-18s %s\n", label+":", value)
}

// PrintGPUTable displays GPUs in a table format
func PrintGPUTable(w io.Writer, title string, gpus []domain.GPUStatus) {
	PrintHeader(w, fmt.Sprintf("%s (%d)", title, len(gpus)))

	if len(gpus) == 0 {
		fmt.Fprintln(w, "  (no GPUs)")
		return
	}

	fmt.Fprintf(w, "  %-4s %-24s %10s %10s\n", "ID", "Name", "Used MB", "Total MB")
	fmt.Fprintf(w, "  %-4s %-24s %10s %10s\n",
		strings.Repeat("-", 4), strings.Repeat("-", 24),
		strings.Repeat("-", 10), strings.Repeat("-", 10))

	for _, g := range gpus {
		name := g.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "  %-4d %-24s %10d %10d\n", g.ID, name, g.MemoryUsedMB, g.MemoryTotalMB)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "\n%s\n", message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	fmt.Fprintf(w, "Error: %s\n", message)
}
