package session

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/inkwell-labs/inkwell/backend/internal/documents"
	"github.com/inkwell-labs/inkwell/backend/internal/richtext"
)

// ErrInvalidContent indicates a payload the document's codec rejected.
var ErrInvalidContent = errors.New("session: invalid content")

// ContentCodec defines how a document kind's content payload is encoded
// on the wire. The synchronizer validates every edit through the codec
// before it ever reaches the gateway.
type ContentCodec interface {
	Kind() documents.Kind
	Validate(encoded string) error
	Empty() string
}

// RichTextCodec handles delta-encoded rich text documents.
type RichTextCodec struct{}

// Kind reports the document kind this codec serves.
func (RichTextCodec) Kind() documents.Kind {
	return documents.KindRichText
}

// Validate parses and checks the delta payload.
func (RichTextCodec) Validate(encoded string) error {
	if _, err := richtext.Parse(encoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return nil
}

// Empty returns the delta for a blank document.
func (RichTextCodec) Empty() string {
	encoded, _ := richtext.Empty().Encode()
	return encoded
}

// CodeCodec handles raw source text documents.
type CodeCodec struct{}

// Kind reports the document kind this codec serves.
func (CodeCodec) Kind() documents.Kind {
	return documents.KindCode
}

// Validate rejects payloads that are not valid UTF-8.
func (CodeCodec) Validate(encoded string) error {
	if !utf8.ValidString(encoded) {
		return fmt.Errorf("%w: content is not valid utf-8", ErrInvalidContent)
	}
	return nil
}

// Empty returns the content of a blank code file.
func (CodeCodec) Empty() string {
	return ""
}

// CodecFor selects the codec matching a document kind.
func CodecFor(kind documents.Kind) (ContentCodec, error) {
	switch kind {
	case documents.KindRichText:
		return RichTextCodec{}, nil
	case documents.KindCode:
		return CodeCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", documents.ErrInvalidKind, kind)
	}
}
