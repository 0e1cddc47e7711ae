package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"tunesmith/internal/distribution"
	"tunesmith/internal/submission"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 22

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	status := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", status)
	return paint(line, statusKindColor(kind), colorize)
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func songStateKind(state submission.State) statusKind {
	switch state {
	case submission.StateCompleted:
		return statusOK
	case submission.StateFailed:
		return statusError
	case submission.StateDraft:
		return statusInfo
	default:
		return statusWarn
	}
}

func releaseStatusKind(status distribution.Status) statusKind {
	switch status {
	case distribution.StatusSubmitted, distribution.StatusLive:
		return statusOK
	case distribution.StatusError:
		return statusError
	case distribution.StatusUploading:
		return statusWarn
	default:
		return statusInfo
	}
}

func paint(s, color string, colorize bool) string {
	if !colorize || color == "" {
		return s
	}
	return color + s + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// renderProgress prints one line per event until events is closed.
func renderProgress(out io.Writer, events <-chan submission.Event, done chan<- struct{}) {
	defer close(done)
	colorize := shouldColorize(out)
	for ev := range events {
		state := paint(fmt.Sprintf("%-19s", ev.State), statusKindColor(songStateKind(ev.State)), colorize)
		line := fmt.Sprintf("%s %-28s %s %3d%%", ev.Time.Format(time.TimeOnly), truncate(ev.ItemKey, 28), state, ev.Percent)
		if msg := strings.TrimSpace(ev.Message); msg != "" {
			line += "  " + msg
		}
		fmt.Fprintln(out, line)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
