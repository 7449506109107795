package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/moma/internal/modlist"
)

// RenderModList writes mods and their archives, one archive per line with
// its status.
func RenderModList(w io.Writer, mods []modlist.Mod) error {
	if len(mods) == 0 {
		_, err := fmt.Fprintln(w, styleMuted.Render("no mods"))
		return err
	}

	nameWidth := 0
	for _, m := range mods {
		for _, a := range m.Archives {
			nameWidth = max(nameWidth, lipgloss.Width(a.FileName))
		}
	}

	var b strings.Builder
	for i, m := range mods {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s\n", styleHeader.Render(m.Name), styleMuted.Render(fmt.Sprintf("(%d)", m.UID)))
		for _, a := range m.Archives {
			pad := strings.Repeat(" ", nameWidth-lipgloss.Width(a.FileName))
			fmt.Fprintf(&b, "  %s%s  %s  %s\n",
				a.FileName, pad,
				styleMuted.Render(fmt.Sprintf("[%d]", a.FileUID)),
				StatusStyle(a.Status).Render(a.Status.String()))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
