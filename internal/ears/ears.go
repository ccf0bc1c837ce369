// Package ears classifies acceptance-criterion lines against the EARS
// requirement grammar (WHEN/IF/WHILE/WHERE ... THEN ... SHALL ...).
//
// Classification is a deterministic longest-match over an ordered rule
// list, not free-form text analysis. Each rule names a clause template
// and the anchor keywords that must appear in relative order for the
// template to match. Matching is case-insensitive and tolerant of
// surrounding whitespace and punctuation.
package ears

import (
	"regexp"
	"strings"
)

// ClauseKind identifies the clause template a criterion matched.
type ClauseKind string

const (
	ClauseWhenThenShall  ClauseKind = "WHEN_THEN_SHALL"
	ClauseIfThenShall    ClauseKind = "IF_THEN_SHALL"
	ClauseWhileThenShall ClauseKind = "WHILE_THEN_SHALL"
	ClauseWhereThenShall ClauseKind = "WHERE_THEN_SHALL"
	ClausePlainShall     ClauseKind = "PLAIN_SHALL"
	ClauseUnrecognized   ClauseKind = "UNRECOGNIZED"
)

// Classification is the result of matching one criterion line.
type Classification struct {
	Kind ClauseKind

	// Trigger is the clause between the leading keyword and THEN.
	// Empty for plain SHALL statements.
	Trigger string

	// Response is the required behavior following SHALL.
	Response string

	Valid bool
}

// Rule is one clause template. Anchors must appear in the given
// relative order, as whole words, for the rule to match.
type Rule struct {
	Name     string
	Kind     ClauseKind
	Priority int
	Anchors  []string
}

// Rules is the ordered template list, most specific first. Among rules
// that match a line, the one spanning the longest run of text from its
// first anchor to its last wins; equal spans fall back to priority.
// This keeps "IF x WHEN y THEN z SHALL w" classified by its outer IF
// clause rather than the embedded WHEN.
var Rules = []Rule{
	{Name: "while-then-shall", Kind: ClauseWhileThenShall, Priority: 0, Anchors: []string{"WHILE", "THEN", "SHALL"}},
	{Name: "where-then-shall", Kind: ClauseWhereThenShall, Priority: 1, Anchors: []string{"WHERE", "THEN", "SHALL"}},
	{Name: "when-then-shall", Kind: ClauseWhenThenShall, Priority: 2, Anchors: []string{"WHEN", "THEN", "SHALL"}},
	{Name: "if-then-shall", Kind: ClauseIfThenShall, Priority: 3, Anchors: []string{"IF", "THEN", "SHALL"}},
	{Name: "plain-shall", Kind: ClausePlainShall, Priority: 4, Anchors: []string{"SHALL"}},
}

// anchorPatterns holds a compiled whole-word pattern per anchor keyword.
var anchorPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, r := range Rules {
		for _, a := range r.Anchors {
			if _, ok := anchorPatterns[a]; !ok {
				anchorPatterns[a] = regexp.MustCompile(`(?i)\b` + a + `\b`)
			}
		}
	}
}

// Classify matches a criterion line against the rule list.
func Classify(line string) Classification {
	text := strings.TrimSpace(line)

	var (
		bestRule  *Rule
		bestSpans [][2]int
		bestSpan  int
	)
	for i := range Rules {
		r := &Rules[i]
		spans, ok := matchAnchors(text, r.Anchors)
		if !ok {
			continue
		}
		span := spans[len(spans)-1][1] - spans[0][0]
		if bestRule == nil || span > bestSpan {
			bestRule = r
			bestSpans = spans
			bestSpan = span
		}
	}

	if bestRule == nil {
		return Classification{Kind: ClauseUnrecognized}
	}
	return extract(text, bestRule, bestSpans)
}

// matchAnchors locates the anchors in order, each search starting after
// the previous anchor's end. Leftmost placement maximizes the matched
// span for the rule.
func matchAnchors(text string, anchors []string) ([][2]int, bool) {
	spans := make([][2]int, 0, len(anchors))
	from := 0
	for _, a := range anchors {
		loc := anchorPatterns[a].FindStringIndex(text[from:])
		if loc == nil {
			return nil, false
		}
		spans = append(spans, [2]int{from + loc[0], from + loc[1]})
		from += loc[1]
	}
	return spans, true
}

func extract(text string, r *Rule, spans [][2]int) Classification {
	c := Classification{Kind: r.Kind}

	last := spans[len(spans)-1]
	c.Response = cleanSpan(text[last[1]:])

	if len(r.Anchors) == 3 {
		c.Trigger = cleanSpan(text[spans[0][1]:spans[1][0]])
	}

	c.Valid = c.Response != ""
	if len(r.Anchors) == 3 && c.Trigger == "" {
		c.Valid = false
	}
	return c
}

// cleanSpan trims whitespace and dangling punctuation from an extracted
// substring.
func cleanSpan(s string) string {
	return strings.Trim(s, " \t.,:;")
}

// Problem describes why a classification is invalid. Empty for valid
// classifications.
func (c Classification) Problem() string {
	switch {
	case c.Valid:
		return ""
	case c.Kind == ClauseUnrecognized:
		return "does not follow EARS format (expected WHEN/IF/WHILE/WHERE ... THEN ... SHALL, or a plain SHALL statement)"
	case c.Response == "":
		return "is missing a system response after SHALL"
	default:
		return "is missing a trigger clause before THEN"
	}
}
