// Package richtext models the delta payload produced by the rich-text
// editor: an ordered list of insert runs, each optionally carrying
// formatting attributes.
package richtext

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDelta indicates the payload is not a well-formed delta.
	ErrInvalidDelta = errors.New("richtext: invalid delta")
)

// Attributes captures the formatting applied to a single insert run.
type Attributes struct {
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
	Header    int    `json:"header,omitempty"`
	List      string `json:"list,omitempty"`
	CodeBlock bool   `json:"code-block,omitempty"`
}

// Op is a single insert run within a delta.
type Op struct {
	Insert     string      `json:"insert"`
	Attributes *Attributes `json:"attributes,omitempty"`
}

// Delta is the full content of a rich-text document.
type Delta struct {
	Ops []Op `json:"ops"`
}

// Empty returns the delta representing a freshly created document.
func Empty() Delta {
	return Delta{Ops: []Op{{Insert: "\n"}}}
}

// Parse decodes and validates a JSON-encoded delta.
func Parse(raw string) (Delta, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Delta{}, fmt.Errorf("%w: empty", ErrInvalidDelta)
	}
	var delta Delta
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&delta); err != nil {
		return Delta{}, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
	}
	if err := delta.Validate(); err != nil {
		return Delta{}, err
	}
	return delta, nil
}

// Validate checks structural constraints on the delta.
func (d Delta) Validate() error {
	if len(d.Ops) == 0 {
		return fmt.Errorf("%w: no ops", ErrInvalidDelta)
	}
	for index, op := range d.Ops {
		if op.Insert == "" {
			return fmt.Errorf("%w: op %d has empty insert", ErrInvalidDelta, index)
		}
		if op.Attributes != nil {
			if op.Attributes.Header < 0 || op.Attributes.Header > 6 {
				return fmt.Errorf("%w: op %d header out of range", ErrInvalidDelta, index)
			}
			switch op.Attributes.List {
			case "", "bullet", "ordered":
			default:
				return fmt.Errorf("%w: op %d unknown list kind %q", ErrInvalidDelta, index, op.Attributes.List)
			}
		}
	}
	return nil
}

// Encode serializes the delta to its canonical JSON form.
func (d Delta) Encode() (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	encoded, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// PlainText flattens the delta to the text a reader would see, without
// formatting.
func (d Delta) PlainText() string {
	var builder strings.Builder
	for _, op := range d.Ops {
		builder.WriteString(op.Insert)
	}
	return builder.String()
}

// Length returns the number of characters in the flattened document.
func (d Delta) Length() int {
	total := 0
	for _, op := range d.Ops {
		total += len([]rune(op.Insert))
	}
	return total
}
