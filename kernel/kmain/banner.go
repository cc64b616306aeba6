package kmain

import (
	"io"
	"strings"

	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
)

const welcomeMessage = "Mooo. Welcome to ShompOS!"

var cow = []string{
	`        \   ^__^`,
	`         \  (oo)\_______`,
	`            (__)\       )\/\`,
	`                ||----w |`,
	`                ||     ||`,
}

// cowsay draws message in a speech bubble followed by a cow.
func cowsay(w io.Writer, message string) {
	border := strings.Repeat("_", len(message)+2)
	kfmt.Fprintf(w, " %s\n", border)
	kfmt.Fprintf(w, "< %s >\n", message)
	kfmt.Fprintf(w, " %s\n", strings.Repeat("-", len(message)+2))

	for _, line := range cow {
		kfmt.Fprintf(w, "%s\n", line)
	}
}
