package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// excerptLevels are the log levels re-emitted by the failure excerpt.
var excerptLevels = map[string]bool{
	"error": true,
	"fatal": true,
}

// ExtractErrorLines reads a persisted workspace log (JSON lines) and
// returns the error-relevant lines, rendered for human consumption.
// Lines that do not parse as JSON are kept verbatim when they mention
// an error, so output captured from external tools is not lost.
func ExtractErrorLines(logPath string) ([]string, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("open workspace log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			if strings.Contains(strings.ToLower(line), "error") {
				lines = append(lines, line)
			}
			continue
		}

		level, _ := entry["level"].(string)
		if !excerptLevels[level] {
			continue
		}
		lines = append(lines, renderExcerptLine(entry))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read workspace log: %w", err)
	}

	return lines, nil
}

// renderExcerptLine flattens one structured log entry into a single
// readable line.
func renderExcerptLine(entry map[string]interface{}) string {
	var sb strings.Builder

	if level, ok := entry["level"].(string); ok {
		sb.WriteString(strings.ToUpper(level))
		sb.WriteString(" ")
	}
	if msg, ok := entry["message"].(string); ok {
		sb.WriteString(msg)
	}
	if errMsg, ok := entry["error"].(string); ok {
		sb.WriteString(": ")
		sb.WriteString(errMsg)
	}

	for _, key := range []string{"component", "workspace", "stage", "generator"} {
		if v, ok := entry[key].(string); ok {
			fmt.Fprintf(&sb, " %s=%s", key, v)
		}
	}

	return sb.String()
}

// WriteExcerpt extracts the error-relevant lines from a workspace log
// and writes them to w, one per line. Used by the failure supervisor in
// quiet mode to surface diagnostics on the original stderr stream.
func WriteExcerpt(w io.Writer, logPath string) error {
	lines, err := ExtractErrorLines(logPath)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
