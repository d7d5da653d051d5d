package registry

import "strings"

// Filter type values with special meaning
const (
	FilterAll   = "all"
	FilterImage = "image"
	FilterTest  = "test"
)

// seedMarker is part of every name the engine generates for the seed corpus
const seedMarker = "test_file_"

var imageTypes = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
	"svg":  true,
	"webp": true,
}

// Filter narrows a listing. Type "image" matches any image extension, "test"
// matches generated seed files, any other value matches the type exactly.
// Query is a case-insensitive substring of the name.
type Filter struct {
	Type  string
	Query string
}

// IsZero reports whether the filter lets everything through
func (f Filter) IsZero() bool {
	return (f.Type == "" || f.Type == FilterAll) && f.Query == ""
}

// Match reports whether rec passes the filter
func (f Filter) Match(rec FileRecord) bool {
	switch f.Type {
	case "", FilterAll:
	case FilterImage:
		if !IsImageType(rec.Type) {
			return false
		}
	case FilterTest:
		if !strings.Contains(rec.Name, seedMarker) {
			return false
		}
	default:
		if rec.Type != strings.ToLower(f.Type) {
			return false
		}
	}

	if f.Query != "" && !strings.Contains(strings.ToLower(rec.Name), strings.ToLower(f.Query)) {
		return false
	}
	return true
}

// IsImageType reports whether a type inferred by InferType is an image
func IsImageType(t string) bool {
	return imageTypes[t]
}
