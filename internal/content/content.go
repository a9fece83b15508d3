package content

import (
	"mime"
	"path/filepath"

	"github.com/h2non/filetype"
	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.UGCPolicy()

// Sanitize removes unsafe HTML from the input string using a strict policy.
// Every outbound message body goes through it before dispatch.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// DetectMime sniffs the mime type from the first bytes of a file, falling
// back to the file extension when the content is not recognized.
func DetectMime(name string, head []byte) string {
	if t, err := filetype.Match(head); err == nil && t != filetype.Unknown {
		return t.MIME.Value
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
