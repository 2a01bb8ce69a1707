package pathgen

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"photocopy/internal/types"
)

// Generator expands a destination template for one file at a time. A
// Generator is immutable after construction and safe for concurrent use;
// the optional Stats context it reads is itself synchronized.
type Generator struct {
	template            string
	casing              types.PathCasing
	granularity         types.LocationGranularity
	unknownFallback     string
	useFullCountryNames bool
	stats               *Stats
}

// NewGenerator builds a Generator from the placement-affecting config
// fields. stats may be nil, in which case every condition passes.
func NewGenerator(cfg *types.Config, stats *Stats) *Generator {
	return &Generator{
		template:            cfg.Destination,
		casing:              cfg.Casing,
		granularity:         cfg.Granularity,
		unknownFallback:     cfg.UnknownLocationFallback,
		useFullCountryNames: cfg.UseFullCountryNames,
		stats:               stats,
	}
}

// variables is the exhaustive set of recognized template variables.
// Anything else inside braces passes through untouched.
var variables = []string{
	"year", "month", "day",
	"district", "city", "county", "state", "country",
	"directory", "name", "nameNoExtension", "ext", "filename",
	"camera", "album",
}

// tokenCache holds one compiled pattern per variable name. Patterns match
// {var}, {var|fallback}, {var?cond[,cond]} and {var?cond[,cond]|fallback}.
var tokenCache sync.Map

func tokenPattern(name string) *regexp.Regexp {
	if re, ok := tokenCache.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`\{` + name + `(?:\?([^|}]*))?(?:\|([^}]*))?\}`)
	tokenCache.Store(name, re)
	return re
}

// Generate expands the template for f and normalizes the result. It never
// fails: unresolved placeholders stay verbatim so a bad template shows up
// in the produced paths instead of aborting the run.
func (g *Generator) Generate(f *types.FileRef) string {
	out := g.template
	for _, name := range variables {
		re := tokenPattern(name)
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			sub := re.FindStringSubmatch(match)
			return g.expand(f, name, sub[1], sub[2])
		})
	}
	return normalizePath(out)
}

// expand materializes one {var?conds|fallback} occurrence.
func (g *Generator) expand(f *types.FileRef, name, conds, fallback string) string {
	value := sanitizeValue(applyCasing(g.resolve(f, name), g.casing))

	if value != "" && conds != "" && !g.conditionsPass(name, value, conds) {
		value = ""
	}
	if value != "" {
		return value
	}

	// Empty after sanitization or a failed condition: fall back. The
	// fallback is tried as a variable name first, then as a literal.
	if fallback != "" {
		if isVariable(fallback) {
			fbValue := sanitizeValue(applyCasing(g.resolve(f, fallback), g.casing))
			if fbValue != "" {
				return fbValue
			}
			return g.unknownFallback
		}
		return fallback
	}
	return g.unknownFallback
}

func isVariable(name string) bool {
	for _, v := range variables {
		if v == name {
			return true
		}
	}
	return false
}

// resolve returns the raw value for a variable, honoring the configured
// location granularity. At City granularity an empty city reads through
// to the district; at coarser granularities district and city are blank.
func (g *Generator) resolve(f *types.FileRef, name string) string {
	t := f.BestTime()
	loc := f.Location
	switch name {
	case "year":
		return fmt.Sprintf("%04d", t.Year())
	case "month":
		return fmt.Sprintf("%02d", int(t.Month()))
	case "day":
		return fmt.Sprintf("%02d", t.Day())
	case "district":
		if loc == nil || g.granularity != types.GranularityCity {
			return ""
		}
		return loc.District
	case "city":
		if loc == nil || g.granularity != types.GranularityCity {
			return ""
		}
		if loc.City == "" {
			return loc.District
		}
		return loc.City
	case "county":
		if loc == nil || g.granularity == types.GranularityState {
			return ""
		}
		return loc.County
	case "state":
		if loc == nil {
			return ""
		}
		return loc.State
	case "country":
		if loc == nil {
			return ""
		}
		if g.useFullCountryNames {
			return countryName(loc.Country)
		}
		return loc.Country
	case "directory":
		return filepath.Base(filepath.Dir(f.Path))
	case "name", "nameNoExtension":
		base := filepath.Base(f.Path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	case "ext":
		return filepath.Ext(f.Path)
	case "filename":
		return filepath.Base(f.Path)
	case "camera":
		return f.Camera
	case "album":
		return f.Album
	}
	return ""
}

// conditionsPass evaluates min=/max= conditions against the statistics
// context. A missing context passes everything.
func (g *Generator) conditionsPass(variable, value, conds string) bool {
	if g.stats == nil {
		return true
	}
	count := g.stats.Count(variable, value)
	for _, cond := range strings.Split(conds, ",") {
		cond = strings.TrimSpace(cond)
		switch {
		case strings.HasPrefix(cond, "min="):
			n, err := strconv.Atoi(cond[4:])
			if err != nil || count < n {
				return false
			}
		case strings.HasPrefix(cond, "max="):
			n, err := strconv.Atoi(cond[4:])
			if err != nil || count > n {
				return false
			}
		default:
			// Unknown condition keywords fail closed so typos surface as
			// the fallback path rather than silently passing.
			return false
		}
	}
	return true
}

func applyCasing(value string, casing types.PathCasing) string {
	switch casing {
	case types.CasingLower:
		return strings.ToLower(value)
	case types.CasingUpper:
		return strings.ToUpper(value)
	case types.CasingTitle:
		return titleCase(value)
	default:
		return value
	}
}

func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range s {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			startOfWord = true
			b.WriteRune(r)
			continue
		}
		if startOfWord {
			b.WriteRune(unicode.ToUpper(r))
			startOfWord = false
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// reservedChars are characters that cannot appear in a path segment on at
// least one supported platform.
const reservedChars = `<>:"/\|?*`

var whitespaceRun = regexp.MustCompile(`\s+`)

// sanitizeValue makes a variable value safe to embed in a path segment.
func sanitizeValue(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if (r < 0x20 && !unicode.IsSpace(r)) || strings.ContainsRune(reservedChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

var leadingSeparatorJunk = regexp.MustCompile(`^[-_]+`)

// normalizePath removes the debris empty variables leave behind:
// separator runs collapse to one, segments made purely of dashes and
// underscores disappear, and leading dash/underscore runs are stripped
// from each segment.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	absolute := strings.HasPrefix(p, "/")

	var segments []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		seg = leadingSeparatorJunk.ReplaceAllString(seg, "")
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
	}

	out := strings.Join(segments, "/")
	if absolute {
		out = "/" + out
	}
	return out
}

// SidecarDestination derives where a sidecar lands given its primary's
// final destination: same directory, primary's base name, sidecar's
// extension.
func SidecarDestination(primaryDest string, sidecar *types.FileRef) string {
	base := filepath.Base(primaryDest)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(primaryDest), base+filepath.Ext(sidecar.Path))
}
