// Package sym defines canonical symbols for zapd system markers.
// These symbols are stable across CLI output, structured logs, and
// documentation; log consumers key on them to filter by subsystem.
package sym

// System infrastructure symbols.
const (
	Surge      = "⚡" // surge engine: async zap tasks, dispatch, retry budget
	SurgeOpen  = "✿" // graceful startup with orphaned task recovery
	SurgeClose = "❀" // graceful shutdown with in-flight task drain
	SurgeRetry = "꩜" // retry scheduling and budget accounting
	DB         = "⊔" // database/storage layer
	Auth       = "⌱" // authentication and ACL evaluation
	HTTP       = "⇄" // request/response surface
)

// entry binds a glyph to its stable name and description.
type entry struct {
	glyph       string
	name        string
	description string
}

// registry is the canonical mapping between glyphs and symbol metadata.
var registry = []entry{
	{Surge, "surge", "Async zap tasks, dispatch, retry budget"},
	{SurgeOpen, "surge_open", "Graceful startup with orphaned task recovery"},
	{SurgeClose, "surge_close", "Graceful shutdown with in-flight task drain"},
	{SurgeRetry, "surge_retry", "Retry scheduling and budget accounting"},
	{DB, "db", "Database/storage layer"},
	{Auth, "auth", "Authentication and ACL evaluation"},
	{HTTP, "http", "Request/response surface"},
}

// Lookup tables built from the registry at init time.
var (
	glyphToName map[string]string
	nameToGlyph map[string]string
)

func init() {
	glyphToName = make(map[string]string, len(registry))
	nameToGlyph = make(map[string]string, len(registry))
	for _, e := range registry {
		glyphToName[e.glyph] = e.name
		nameToGlyph[e.name] = e.glyph
	}
}

// Name returns the stable identifier for a glyph, or "" if unknown.
func Name(glyph string) string {
	return glyphToName[glyph]
}

// FromName returns the glyph for a stable identifier, or "" if unknown.
func FromName(name string) string {
	return nameToGlyph[name]
}

// Known reports whether the glyph is a registered zapd symbol.
func Known(glyph string) bool {
	_, ok := glyphToName[glyph]
	return ok
}

// Describe returns the human-readable description for a glyph.
func Describe(glyph string) string {
	for _, e := range registry {
		if e.glyph == glyph {
			return e.description
		}
	}
	return ""
}
