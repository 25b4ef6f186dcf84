package server

import (
	"fmt"
	"io"
	"strings"

	"setopprice/internal/progress"
)

// writeEvent frames one progress event. Text lines are unnamed messages,
// heartbeats and the end marker carry an event name so browsers can tell
// them apart.
func writeEvent(w io.Writer, ev progress.Event) error {
	var b strings.Builder
	switch ev.Kind {
	case progress.KindHeartbeat:
		b.WriteString("event: heartbeat\ndata: ping\n\n")
	case progress.KindEnd:
		b.WriteString("event: end\n")
		writeData(&b, ev.Text)
	default:
		writeData(&b, ev.Text)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeData(b *strings.Builder, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(b, "data: %s\n", line)
	}
	b.WriteString("\n")
}
