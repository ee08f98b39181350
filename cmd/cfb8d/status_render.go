package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"cfb8d/internal/config"
	"cfb8d/internal/daemon"
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

const (
	statusLabelWidth = 14
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
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
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func daemonStatusLines(status *daemon.Status, cfg *config.Config, colorize bool) []string {
	lines := make([]string, 0, 5)
	if status.Running {
		detail := "Running"
		if status.PID > 0 {
			detail = fmt.Sprintf("Running (pid %d)", status.PID)
		}
		lines = append(lines, renderStatusLine("Daemon", statusOK, detail, colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
	}

	socketKind := statusWarn
	if status.Running {
		socketKind = statusOK
	}
	lines = append(lines, renderStatusLine("Socket", socketKind, status.SocketPath, colorize))

	if cfg != nil {
		switch {
		case !cfg.API.Enabled:
			lines = append(lines, renderStatusLine("Status API", statusInfo, "disabled", colorize))
		default:
			detail := fmt.Sprintf("http://%s (token: %s)", cfg.API.Bind, yesNo(cfg.API.Token != ""))
			lines = append(lines, renderStatusLine("Status API", statusInfo, detail, colorize))
		}
	}

	if status.Running && status.UptimeSeconds > 0 {
		uptime := (time.Duration(status.UptimeSeconds) * time.Second).String()
		lines = append(lines, renderStatusLine("Uptime", statusInfo, uptime, colorize))
	}
	if status.Running {
		detail := fmt.Sprintf("%d active, %d accepted", status.ActiveConnections, status.AcceptedConnections)
		lines = append(lines, renderStatusLine("Connections", statusInfo, detail, colorize))
	}
	return lines
}

// metricRows flattens the status metrics snapshot into sorted table rows.
func metricRows(status *daemon.Status) [][]string {
	if status == nil {
		return nil
	}
	snap := status.Metrics
	var rows [][]string
	rows = appendCounterRows(rows, "Sessions", snap.SessionsTotal)
	if snap.SessionsActive > 0 || len(rows) > 0 {
		rows = append(rows, []string{"Sessions active", fmt.Sprintf("%d", snap.SessionsActive)})
	}
	rows = appendCounterRows(rows, "Bytes", snap.BytesTotal)
	rows = appendCounterRows(rows, "Errors", snap.Errors)
	rows = appendCounterRows(rows, "Rejected", snap.Rejected)
	return rows
}

func appendCounterRows(rows [][]string, prefix string, values map[string]uint64) [][]string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		rows = append(rows, []string{fmt.Sprintf("%s (%s)", prefix, key), fmt.Sprintf("%d", values[key])})
	}
	return rows
}
