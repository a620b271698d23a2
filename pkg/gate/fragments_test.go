package gate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckFragments(t *testing.T) {
	dir := t.TempDir()

	present := filepath.Join(dir, "present")
	if err := os.WriteFile(present, []byte("content"), 0o644); err != nil {
		t.Fatalf("write fragment: %v", err)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write fragment: %v", err)
	}

	t.Run("all present", func(t *testing.T) {
		result := FragmentChecker{}.CheckFragments(map[string]string{
			"gen/a": present,
		})
		if !result.Allowed {
			t.Errorf("present fragment rejected: %+v", result.Violations)
		}
	})

	t.Run("missing fragment", func(t *testing.T) {
		result := FragmentChecker{}.CheckFragments(map[string]string{
			"gen/a": present,
			"gen/b": filepath.Join(dir, "nope"),
		})
		if result.Allowed {
			t.Error("missing fragment was allowed")
		}
		if len(result.Violations) != 1 || result.Violations[0].Entity != "gen/b" {
			t.Errorf("violations = %+v", result.Violations)
		}
	})

	t.Run("empty fragment", func(t *testing.T) {
		result := FragmentChecker{}.CheckFragments(map[string]string{
			"gen/a": empty,
		})
		if result.Allowed {
			t.Error("empty fragment was allowed")
		}
	})

	t.Run("no fragments expected", func(t *testing.T) {
		result := FragmentChecker{}.CheckFragments(nil)
		if !result.Allowed {
			t.Error("empty expectation rejected")
		}
	})
}
