package entity

import (
	"fmt"
	"strings"
)

// ContentFormat maps a MIME type to one representation of a piece of
// content. Text is inlined, media is referenced: text MIME types carry the
// literal string and remote=false, every other MIME type carries a URL and
// remote=true.
type ContentFormat map[string]ContentEntry

// ContentEntry is a single representation within a ContentFormat map.
type ContentEntry struct {
	// Content is the inline text or, for remote entries, the URL.
	Content string `json:"content"`

	// Remote is true when Content is a URL to fetch rather than the
	// content itself.
	Remote bool `json:"remote"`

	Description string `json:"description,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Hash        *Hash  `json:"hash,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	FPS         int    `json:"fps,omitempty"`
}

// Hash is a content integrity checksum.
type Hash struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// isTextMIME reports whether the MIME type is inlined on the wire.
func isTextMIME(mime string) bool {
	return strings.HasPrefix(mime, "text/")
}

// Validate enforces the inline/remote asymmetry for every entry.
func (cf ContentFormat) Validate(field string) error {
	for mime, entry := range cf {
		if mime == "" {
			return validationError(field, "contains an empty MIME key")
		}
		if entry.Content == "" {
			return validationError(field, fmt.Sprintf("entry %q has empty content", mime))
		}

		if isTextMIME(mime) {
			if entry.Remote {
				return validationError(field,
					fmt.Sprintf("text entry %q must be inline (remote=false)", mime))
			}
			continue
		}

		if !entry.Remote {
			return validationError(field,
				fmt.Sprintf("non-text entry %q must be a remote reference (remote=true)", mime))
		}
		if err := validateAbsoluteURI(field, entry.Content); err != nil {
			return validationError(field,
				fmt.Sprintf("remote entry %q content must be an absolute URL", mime))
		}
	}
	return nil
}
