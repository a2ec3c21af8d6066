package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
	"github.com/AliceSyndrome285/CradleAI/plugin/ai/timeout"
)

// writeMessages renders client messages with the role-index each would
// resolve to in log.
func writeMessages(w io.Writer, log []msgindex.LogEntry, messages []msgindex.ClientMessage, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeMessagesTable(w, log, messages)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(messages)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeMessagesTable(w io.Writer, log []msgindex.LogEntry, messages []msgindex.ClientMessage) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if useColor(w) {
		tw.SetStyle(table.StyleColoredDark)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	tw.Style().Options.SeparateHeader = true

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 6, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 80},
	})
	tw.AppendHeader(table.Row{"#", "Sender", "Role Index", "Time", "Message ID", "Text"})

	for _, m := range messages {
		tw.AppendRow(table.Row{
			m.MessageIndex,
			m.Sender,
			roleIndexLabel(log, m),
			time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339),
			m.ID,
			truncate(strings.ReplaceAll(m.Text, "\n", "\\n"), timeout.MaxTruncateLength),
		})
	}
	if len(messages) == 0 {
		tw.AppendRow(table.Row{"-", "-", "-", "-", "(no messages)", "-"})
	}

	_ = tw.Render()
	return nil
}

// roleIndexLabel is "first_mes" for the opening line, the role-index otherwise.
func roleIndexLabel(log []msgindex.LogEntry, m msgindex.ClientMessage) string {
	if m.MessageIndex >= 0 && m.MessageIndex < len(log) && log[m.MessageIndex].IsFirstMes {
		return "first_mes"
	}
	role := msgindex.RoleModel
	if m.Sender == msgindex.SenderUser {
		role = msgindex.RoleUser
	}
	if idx := msgindex.RoleIndexOf(log, m.MessageIndex, role); idx != msgindex.NotFound {
		return fmt.Sprintf("%d", idx)
	}
	return "-"
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
