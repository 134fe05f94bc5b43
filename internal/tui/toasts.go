package tui

import (
	"strings"

	"github.com/endolabs/endo-cli/internal/notify"
)

// renderToasts draws the transient notifications above the active page,
// in insertion order. Dismissal is timer-driven; the view just reflects
// the queue.
func renderToasts(queue *notify.Queue) string {
	items := queue.Items()
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	for _, item := range items {
		switch item.Category {
		case notify.CategorySuccess:
			b.WriteString(toastSuccessStyle.Render(item.Message))
		default:
			b.WriteString(toastErrorStyle.Render(item.Message))
		}
		b.WriteString("\n")
	}
	return b.String()
}
