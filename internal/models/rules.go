package models

import (
	"fmt"
	"strings"

	"doc-reindexer/internal/errors"
)

// FieldOp is the edit applied to a field before a document is written back.
type FieldOp int

const (
	// FieldBlank replaces the value with an empty string and keeps the key.
	FieldBlank FieldOp = iota + 1
	// FieldDrop removes the key from the document.
	FieldDrop
)

func (op FieldOp) String() string {
	switch op {
	case FieldBlank:
		return "blank"
	case FieldDrop:
		return "drop"
	default:
		return fmt.Sprintf("FieldOp(%d)", int(op))
	}
}

// ParseFieldOp accepts blank/drop and the older empty/ignore spellings.
func ParseFieldOp(s string) (FieldOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blank", "empty":
		return FieldBlank, nil
	case "drop", "ignore":
		return FieldDrop, nil
	}
	return 0, errors.New(errors.Config, "unknown field operation %q", s)
}

type FieldRule struct {
	Field string
	Op    FieldOp
}

func (r FieldRule) String() string {
	return r.Field + "=" + r.Op.String()
}

// FieldRules are applied in configured order.
type FieldRules []FieldRule

// ParseFieldRules parses entries of the form "field=op".
func ParseFieldRules(entries []string) (FieldRules, error) {
	rules := make(FieldRules, 0, len(entries))
	for _, entry := range entries {
		field, op, ok := strings.Cut(entry, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, errors.New(errors.Config, "field rule %q: want field=blank|drop", entry)
		}
		parsed, err := ParseFieldOp(op)
		if err != nil {
			return nil, errors.Wrap(err, errors.Config, "field rule %q", entry)
		}
		rules = append(rules, FieldRule{Field: field, Op: parsed})
	}
	return rules, nil
}

// Apply edits doc in place. Rules naming a field the document lacks are skipped.
func (rules FieldRules) Apply(doc *Document) error {
	for _, rule := range rules {
		if !doc.Has(rule.Field) {
			continue
		}
		var err error
		switch rule.Op {
		case FieldBlank:
			err = doc.Set(rule.Field, "")
		case FieldDrop:
			err = doc.Delete(rule.Field)
		default:
			err = errors.New(errors.Config, "field %s: unknown operation %s", rule.Field, rule.Op)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Strings renders rules back into their "field=op" form.
func (rules FieldRules) Strings() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.String()
	}
	return out
}
