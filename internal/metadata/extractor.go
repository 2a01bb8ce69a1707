// Package metadata turns raw files into FileRefs: capture dates, camera
// model, album and sidecar attachment. The engine downstream treats
// everything produced here as opaque input.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Confidence ranks how reliable an extracted date is.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow             // filesystem mtime
	ConfidenceMedium          // limited container metadata (AVI, WebM)
	ConfidenceHigh            // camera/device metadata
)

// Result carries the extracted fields for one file.
type Result struct {
	Date       time.Time
	Camera     string
	Confidence Confidence
	Source     string
	Error      error
}

// Extractor extracts dates (and, where available, the camera model) from
// one family of file formats.
type Extractor interface {
	Name() string
	CanHandle(extension string) bool
	Extract(path string) Result
}

// Registry tries extractors in order and keeps the best result.
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds the standard chain. The filesystem extractor comes
// last as the universal fallback.
func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			&ExifExtractor{},
			&VideoExtractor{},
			&FilesystemExtractor{},
		},
	}
}

// ExtractBest runs every applicable extractor and returns the most
// confident result.
func (r *Registry) ExtractBest(path string) Result {
	ext := strings.ToLower(filepath.Ext(path))

	best := Result{Confidence: ConfidenceNone}
	for _, e := range r.extractors {
		if !e.CanHandle(ext) {
			continue
		}
		res := e.Extract(path)
		if res.Confidence > best.Confidence ||
			(res.Confidence == best.Confidence && res.Error == nil && best.Error != nil) {
			if best.Camera != "" && res.Camera == "" {
				res.Camera = best.Camera
			}
			best = res
		}
		if best.Confidence == ConfidenceHigh && best.Error == nil {
			break
		}
	}
	return best
}

// ExifExtractor reads JPEG/HEIC EXIF blocks.
type ExifExtractor struct{}

func (e *ExifExtractor) Name() string { return "EXIF" }

func (e *ExifExtractor) CanHandle(extension string) bool {
	switch extension {
	case ".jpg", ".jpeg", ".heic", ".heif", ".tif", ".tiff":
		return true
	default:
		return false
	}
}

func (e *ExifExtractor) Extract(path string) Result {
	f, err := os.Open(path)
	if err != nil {
		return Result{Source: "EXIF", Error: fmt.Errorf("open file: %w", err)}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Result{Source: "EXIF", Error: fmt.Errorf("decode EXIF: %w", err)}
	}

	camera := cameraModel(x)

	// Date fields in order of preference: capture time beats digitization
	// time beats file modification.
	dateFields := []struct {
		field  exif.FieldName
		source string
	}{
		{exif.DateTimeOriginal, "EXIF DateTimeOriginal"},
		{exif.DateTimeDigitized, "EXIF DateTimeDigitized"},
		{exif.DateTime, "EXIF DateTime"},
	}
	for _, field := range dateFields {
		tag, err := x.Get(field.field)
		if err != nil {
			continue
		}
		dateStr, err := tag.StringVal()
		if err != nil {
			continue
		}
		if date, err := time.Parse("2006:01:02 15:04:05", dateStr); err == nil {
			return Result{Date: date, Camera: camera, Confidence: ConfidenceHigh, Source: field.source}
		}
	}

	if dt, err := x.DateTime(); err == nil {
		return Result{Date: dt, Camera: camera, Confidence: ConfidenceHigh, Source: "EXIF DateTime (legacy)"}
	}

	return Result{Camera: camera, Source: "EXIF", Error: fmt.Errorf("no valid date fields found in EXIF")}
}

func cameraModel(x *exif.Exif) string {
	model := tagString(x, exif.Model)
	maker := tagString(x, exif.Make)
	if model == "" {
		return maker
	}
	if maker != "" && !strings.Contains(strings.ToLower(model), strings.ToLower(maker)) {
		return maker + " " + model
	}
	return model
}

func tagString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// VideoExtractor shells out to ffprobe when it is installed; without it
// videos fall through to the filesystem extractor.
type VideoExtractor struct{}

func (v *VideoExtractor) Name() string { return "Video" }

func (v *VideoExtractor) CanHandle(extension string) bool {
	switch extension {
	case ".mp4", ".mov", ".mkv", ".webm", ".avi":
		return true
	default:
		return false
	}
}

func (v *VideoExtractor) Extract(path string) Result {
	cmd := exec.Command("ffprobe", "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	out, err := cmd.Output()
	if err != nil {
		return Result{Source: "ffprobe", Error: fmt.Errorf("ffprobe failed: %w", err)}
	}

	var data struct {
		Format struct {
			Tags map[string]string `json:"tags"`
		} `json:"format"`
		Streams []struct {
			Tags map[string]string `json:"tags"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &data); err != nil {
		return Result{Source: "ffprobe", Error: fmt.Errorf("parse ffprobe output: %w", err)}
	}

	dateFields := []struct {
		source string
		getter func() string
	}{
		{"creation_time", func() string { return data.Format.Tags["creation_time"] }},
		{"date", func() string { return data.Format.Tags["date"] }},
		{"com.apple.quicktime.creationdate", func() string { return data.Format.Tags["com.apple.quicktime.creationdate"] }},
		{"stream creation_time", func() string {
			for _, stream := range data.Streams {
				if ct := stream.Tags["creation_time"]; ct != "" {
					return ct
				}
			}
			return ""
		}},
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02 15:04:05",
	}

	for _, field := range dateFields {
		dateStr := field.getter()
		if dateStr == "" {
			continue
		}
		for _, format := range formats {
			if date, err := time.Parse(format, dateStr); err == nil {
				confidence := ConfidenceHigh
				ext := strings.ToLower(filepath.Ext(path))
				if ext == ".avi" || ext == ".webm" {
					confidence = ConfidenceMedium
				}
				return Result{Date: date, Confidence: confidence, Source: "Video " + field.source}
			}
		}
	}

	return Result{Source: "ffprobe", Error: fmt.Errorf("no valid creation time found in video metadata")}
}

// FilesystemExtractor falls back to the modification time. Always last
// in the chain.
type FilesystemExtractor struct{}

func (f *FilesystemExtractor) Name() string { return "Filesystem" }

func (f *FilesystemExtractor) CanHandle(extension string) bool { return true }

func (f *FilesystemExtractor) Extract(path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Source: "Filesystem", Error: fmt.Errorf("stat file: %w", err)}
	}
	return Result{Date: info.ModTime(), Confidence: ConfidenceLow, Source: "Filesystem mtime"}
}
