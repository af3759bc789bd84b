package linker

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// Diagnostics is the error sink for one link: it renders warnings and
// errors to a writer and counts errors so the driver can gate phases.
type Diagnostics struct {
	Out        io.Writer
	Color      bool
	ErrorCount int
}

// NewDiagnostics creates a sink writing to out.
func NewDiagnostics(out io.Writer, color bool) *Diagnostics {
	return &Diagnostics{Out: out, Color: color}
}

// StderrHasColors reports whether stderr is attached to a terminal,
// the default for -color-diagnostics=auto.
func StderrHasColors() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Warnf reports a non-fatal diagnostic.
func (d *Diagnostics) Warnf(format string, args ...any) {
	fmt.Fprintf(d.Out, "wasm-ld: %s: %s\n", d.prefix("warning", warningStyle), fmt.Sprintf(format, args...))
}

// Errorf reports an error and increments the error count.
func (d *Diagnostics) Errorf(format string, args ...any) {
	d.ErrorCount++
	fmt.Fprintf(d.Out, "wasm-ld: %s: %s\n", d.prefix("error", errorStyle), fmt.Sprintf(format, args...))
}

// Report records an error value in the sink.
func (d *Diagnostics) Report(err error) {
	d.Errorf("%v", err)
}

func (d *Diagnostics) prefix(label string, style lipgloss.Style) string {
	if !d.Color {
		return label
	}
	return style.Render(label)
}
