package models

import (
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"doc-reindexer/internal/errors"
)

// IDField names the identifier every document carries for diagnostics.
const IDField = "id"

// Document is one record of the collection kept as raw JSON, so fields of any type
// round-trip to the index untouched unless a field rule edits them.
type Document struct {
	raw string
}

// NewDocument parses a JSON object into a document
func NewDocument(raw []byte) (*Document, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New(errors.Decode, "invalid document json")
	}
	if !gjson.ParseBytes(raw).IsObject() {
		return nil, errors.New(errors.Decode, "document is not a json object")
	}
	return &Document{raw: string(raw)}, nil
}

// NewDocumentFrom encodes fields into a document
func NewDocumentFrom(fields map[string]any) (*Document, error) {
	d := &Document{raw: "{}"}
	for k, v := range fields {
		if err := d.Set(k, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ID returns the identifier as a string, or "" when the document has none
func (d *Document) ID() string {
	return cast.ToString(d.Get(IDField).Value())
}

func (d *Document) Has(field string) bool {
	return d.Get(field).Exists()
}

func (d *Document) Get(field string) gjson.Result {
	return gjson.Get(d.raw, fieldPath(field))
}

// Set replaces the value of a top-level field
func (d *Document) Set(field string, value any) error {
	out, err := sjson.Set(d.raw, fieldPath(field), value)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "set field %s", field)
	}
	d.raw = out
	return nil
}

// Delete removes a top-level field. Deleting a missing field is a no-op.
func (d *Document) Delete(field string) error {
	out, err := sjson.Delete(d.raw, fieldPath(field))
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "delete field %s", field)
	}
	d.raw = out
	return nil
}

func (d *Document) Bytes() []byte {
	return []byte(d.raw)
}

func (d *Document) String() string {
	return d.raw
}

// MarshalJSON emits the document as stored
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Bytes(), nil
}

// UnmarshalJSON satisfies the json Unmarshaler interface
func (d *Document) UnmarshalJSON(raw []byte) error {
	doc, err := NewDocument(raw)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
)

// fieldPath escapes a field name so gjson/sjson treat it as a single top-level key.
func fieldPath(field string) string {
	return pathEscaper.Replace(field)
}
