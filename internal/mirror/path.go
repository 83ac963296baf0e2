package mirror

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// dateStamp formats t as a UTC YYYY-MM-DD folder name.
func dateStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// uniqueName builds a collision-resistant filename from a time-ordered
// component and a random suffix, so no existence lookup is needed.
func uniqueName(prefix, ext string, t time.Time) string {
	if prefix == "" {
		prefix = "img"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%d-%s%s", prefix, t.UnixMilli(), suffix, ext)
}

// buildPath composes the dated destination path for a mirrored asset:
// /<date>/<subfolder?>/<filename>, with subfolder and filename sanitized.
func buildPath(t time.Time, subfolder, filename string) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(dateStamp(t))
	if subfolder != "" {
		b.WriteString("/")
		b.WriteString(unsafePathChars.ReplaceAllString(subfolder, "_"))
	}
	b.WriteString("/")
	b.WriteString(unsafePathChars.ReplaceAllString(filename, "_"))
	return b.String()
}
