package theme

import (
	"fmt"
	"io"
	"os"
)

// Banner returns the CLI banner.
func Banner() string {
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const reset = "\033[0m"

	return "" +
		cyan + "  ┌─────────────────────────────┐\n" + reset +
		cyan + "  │ " + reset + magenta + "twarchive" + reset + "  timeline compiler " + cyan + "│\n" + reset +
		cyan + "  └─────────────────────────────┘\n" + reset
}

// PrintBanner writes the banner to w, or stdout when w is nil. Nothing is
// printed when NO_COLOR is set.
func PrintBanner(w io.Writer) {
	if os.Getenv("NO_COLOR") != "" {
		return
	}
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprint(w, Banner())
}
