// Package types holds the shared data model passed between the scanner,
// planner, executor and checkpoint subsystems.
package types

import (
	"runtime"
	"strings"
	"time"
)

// Mode selects whether source files are copied or moved into the
// destination tree.
type Mode int

const (
	ModeCopy Mode = iota
	ModeMove
)

func (m Mode) String() string {
	switch m {
	case ModeCopy:
		return "Copy"
	case ModeMove:
		return "Move"
	default:
		return "unknown"
	}
}

// ParseMode maps a CLI flag value onto a Mode. Unrecognized values
// default to Copy, the non-destructive choice.
func ParseMode(s string) Mode {
	if strings.EqualFold(s, "move") {
		return ModeMove
	}
	return ModeCopy
}

// PathCasing controls how expanded template variables are cased.
type PathCasing int

const (
	CasingOriginal PathCasing = iota
	CasingLower
	CasingUpper
	CasingTitle
)

func (c PathCasing) String() string {
	switch c {
	case CasingOriginal:
		return "original"
	case CasingLower:
		return "lower"
	case CasingUpper:
		return "upper"
	case CasingTitle:
		return "title"
	default:
		return "unknown"
	}
}

func ParsePathCasing(s string) PathCasing {
	switch strings.ToLower(s) {
	case "lower":
		return CasingLower
	case "upper":
		return CasingUpper
	case "title":
		return CasingTitle
	default:
		return CasingOriginal
	}
}

// LocationGranularity caps how fine-grained location variables may get.
// At GranularityState only {state} and {country} resolve; at
// GranularityCounty the {city} and {district} variables are blanked.
type LocationGranularity int

const (
	GranularityCity LocationGranularity = iota
	GranularityCounty
	GranularityState
)

func (g LocationGranularity) String() string {
	switch g {
	case GranularityCity:
		return "city"
	case GranularityCounty:
		return "county"
	case GranularityState:
		return "state"
	default:
		return "unknown"
	}
}

func ParseGranularity(s string) LocationGranularity {
	switch strings.ToLower(s) {
	case "county":
		return GranularityCounty
	case "state":
		return GranularityState
	default:
		return GranularityCity
	}
}

// LocationData carries the place names attached to a file by an external
// metadata collaborator. Empty fields mean unknown.
type LocationData struct {
	District string
	City     string
	County   string
	State    string
	Country  string
}

// FileRef describes one source file handed to the planner. The engine
// treats every field as opaque input; it never re-reads media bytes to
// derive them.
type FileRef struct {
	// Path is the absolute source path.
	Path string

	// Length is the file size in bytes.
	Length int64

	// Taken is the capture time extracted from metadata. When no capture
	// date is found the scanner fills it with the modification time and
	// sets UnknownReason.
	Taken    time.Time
	Created  time.Time
	Modified time.Time

	Location *LocationData
	Camera   string
	Album    string

	// UnknownReason tags files routed into the fallback location because
	// required metadata was absent.
	UnknownReason string

	// Sidecars travel with this file into the same target directory, in
	// attachment order.
	Sidecars []FileRef
}

// BestTime returns the most trustworthy timestamp: capture time when
// known, then creation time, then modification time.
func (f *FileRef) BestTime() time.Time {
	if !f.Taken.IsZero() {
		return f.Taken
	}
	if !f.Created.IsZero() {
		return f.Created
	}
	return f.Modified
}

// HasLocation reports whether any location field is populated.
func (f *FileRef) HasLocation() bool {
	return f.Location != nil && (f.Location.District != "" || f.Location.City != "" ||
		f.Location.County != "" || f.Location.State != "" || f.Location.Country != "")
}

// Config is the run configuration assembled by the CLI. The fields hashed
// by checkpoint.ComputeConfigHash are the placement-affecting ones; the
// rest tune execution behavior.
type Config struct {
	Source      string
	Destination string // path template, e.g. {dest}/{year}/{month}/{name}{ext}

	Mode        Mode
	Parallelism int

	DuplicatesFormat        string // e.g. "-{number}", appended before the extension
	Casing                  PathCasing
	UseFullCountryNames     bool
	Granularity             LocationGranularity
	UnknownLocationFallback string

	MinDate time.Time
	MaxDate time.Time

	SkipExisting bool
	Overwrite    bool

	FreshStart bool
	Resume     bool
	DryRun     bool
	NoRollback bool

	// CheckpointDir overrides the default .photocopy directory discovery.
	CheckpointDir string
}

// Workers returns the effective worker-pool size.
func (c *Config) Workers() int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	if n := runtime.NumCPU(); n > 1 {
		return n
	}
	return 1
}
