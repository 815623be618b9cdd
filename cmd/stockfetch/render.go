package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
)

// printMarkdown renders markdown for the terminal. Plain markdown is printed
// when raw is set or styling fails.
func printMarkdown(w io.Writer, md string, raw bool) {
	if !raw {
		out, err := glamour.Render(md, "dark")
		if err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprint(w, md)
}
