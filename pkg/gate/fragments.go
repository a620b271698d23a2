package gate

import (
	"fmt"
	"os"
	"time"
)

// FragmentChecker verifies that every code-generation fragment a build
// promised actually landed on disk. It runs after the generator
// fan-out and before promotion.
type FragmentChecker struct{}

// CheckFragments stats each expected artifact path. A missing or empty
// fragment is a blocking violation.
func (FragmentChecker) CheckFragments(paths map[string]string) *Result {
	var violations []Violation
	for name, path := range paths {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			violations = append(violations, Violation{
				Gate:       "fragments",
				Policy:     "present",
				Entity:     name,
				Message:    fmt.Sprintf("fragment %s missing: %v", name, err),
				Severity:   SeverityError,
				DetectedAt: time.Now(),
			})
		case info.Size() == 0:
			violations = append(violations, Violation{
				Gate:       "fragments",
				Policy:     "non-empty",
				Entity:     name,
				Message:    fmt.Sprintf("fragment %s is empty", name),
				Severity:   SeverityError,
				DetectedAt: time.Now(),
			})
		}
	}
	return finalize(violations)
}
