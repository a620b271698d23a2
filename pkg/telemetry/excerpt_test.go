package telemetry

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestExtractErrorLines(t *testing.T) {
	path := writeLog(t,
		`{"level":"info","message":"running pipeline stage","stage":"010-normalize"}`,
		`{"level":"error","message":"generator failed","error":"render failed","component":"codegen","generator":"graph"}`,
		``,
		`{"level":"debug","message":"noise"}`,
		`external tool: fatal error while rendering`,
		`external tool: all good here`,
		`{"level":"fatal","message":"build failed","workspace":"20260828-101500.000-aa11bb22"}`,
	)

	lines, err := ExtractErrorLines(path)
	if err != nil {
		t.Fatalf("ExtractErrorLines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %v", len(lines), lines)
	}

	if !strings.Contains(lines[0], "ERROR generator failed: render failed") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[0], "generator=graph") || !strings.Contains(lines[0], "component=codegen") {
		t.Errorf("line 0 missing context fields: %q", lines[0])
	}
	if lines[1] != "external tool: fatal error while rendering" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "FATAL build failed") || !strings.Contains(lines[2], "workspace=") {
		t.Errorf("line 2 = %q", lines[2])
	}
}

func TestWriteExcerpt(t *testing.T) {
	path := writeLog(t, `{"level":"error","message":"stage failed"}`)

	var buf bytes.Buffer
	if err := WriteExcerpt(&buf, path); err != nil {
		t.Fatalf("WriteExcerpt: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR stage failed") {
		t.Errorf("excerpt = %q", buf.String())
	}
}

func TestExtractErrorLinesMissingFile(t *testing.T) {
	if _, err := ExtractErrorLines(filepath.Join(t.TempDir(), "nope.log")); err == nil {
		t.Error("expected missing log to fail")
	}
}
