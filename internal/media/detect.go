package media

import (
	"github.com/gabriel-vasile/mimetype"
)

// ResolveMime returns the declared MIME type when it names a concrete type
// and otherwise sniffs the payload.
func ResolveMime(declared string, data []byte) string {
	declared = normalizeMime(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return normalizeMime(mimetype.Detect(data).String())
}
