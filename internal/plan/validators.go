// Package plan turns an enumerated file set into a deterministic,
// deduplicated list of copy operations.
package plan

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"photocopy/internal/types"
)

// ValidatorOutcome is the result of one validator check. A rejected file
// is skipped, not failed: it appears in the plan's skip list and never
// reaches the executor.
type ValidatorOutcome struct {
	OK     bool
	Reason string
}

func Accept() ValidatorOutcome { return ValidatorOutcome{OK: true} }

func Reject(format string, args ...any) ValidatorOutcome {
	return ValidatorOutcome{Reason: fmt.Sprintf(format, args...)}
}

// Validator screens files before they are planned. Validators run in
// order; the first rejection wins.
type Validator interface {
	Name() string
	Validate(f *types.FileRef) ValidatorOutcome
}

// ExtensionValidator accepts only files whose extension is allowed.
type ExtensionValidator struct {
	Allowed map[string]bool
}

func (v *ExtensionValidator) Name() string { return "extension" }

func (v *ExtensionValidator) Validate(f *types.FileRef) ValidatorOutcome {
	ext := strings.ToLower(filepath.Ext(f.Path))
	if !v.Allowed[ext] {
		return Reject("extension %s not allowed", ext)
	}
	return Accept()
}

// DateRangeValidator rejects files whose best timestamp falls outside the
// configured window. Zero bounds are open.
type DateRangeValidator struct {
	Min time.Time
	Max time.Time
}

func (v *DateRangeValidator) Name() string { return "date-range" }

func (v *DateRangeValidator) Validate(f *types.FileRef) ValidatorOutcome {
	t := f.BestTime()
	if !v.Min.IsZero() && t.Before(v.Min) {
		return Reject("file date %s before minimum %s", t.Format("2006-01-02"), v.Min.Format("2006-01-02"))
	}
	if !v.Max.IsZero() && t.After(v.Max) {
		return Reject("file date %s after maximum %s", t.Format("2006-01-02"), v.Max.Format("2006-01-02"))
	}
	return Accept()
}

// DefaultValidators assembles the standard chain for a config.
func DefaultValidators(cfg *types.Config, allowed map[string]bool) []Validator {
	var vs []Validator
	if len(allowed) > 0 {
		vs = append(vs, &ExtensionValidator{Allowed: allowed})
	}
	if !cfg.MinDate.IsZero() || !cfg.MaxDate.IsZero() {
		vs = append(vs, &DateRangeValidator{Min: cfg.MinDate, Max: cfg.MaxDate})
	}
	return vs
}
