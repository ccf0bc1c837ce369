package document

import "fmt"

// ParseErrorKind discriminates the conditions under which a document is
// too malformed to produce a Document at all. Softer problems (missing
// sections, numbering gaps) come back as validation issues instead.
type ParseErrorKind string

const (
	// KindMissingSection means the input was empty or had no content
	// to build a document from.
	KindMissingSection ParseErrorKind = "missing_section"

	// KindMalformedHeader means a '#'-prefixed line outside a code
	// fence was not a usable heading.
	KindMalformedHeader ParseErrorKind = "malformed_header"

	// KindDuplicateID means the same requirement or task id was
	// defined more than once.
	KindDuplicateID ParseErrorKind = "duplicate_id"

	// KindBadNumbering means an id contained a zero component, which
	// the hierarchical scheme never produces.
	KindBadNumbering ParseErrorKind = "bad_numbering"
)

// ParseError reports an unrecoverable defect in a document's structure.
type ParseError struct {
	Kind   ParseErrorKind
	Line   int
	Detail string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s at line %d: %s", e.Kind, e.Line, e.Detail)
	}
	return fmt.Sprintf("parse %s: %s", e.Kind, e.Detail)
}

func newParseError(kind ParseErrorKind, line int, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Line: line, Detail: fmt.Sprintf(format, args...)}
}
