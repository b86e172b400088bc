// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query validates and rewrites the bracket-term query language
// shared by every harvesting source. A query encloses each search term
// in square brackets, joins terms with uppercase boolean connectors and
// groups them with parentheses, for example:
//
//	[machine learning] AND ([protein] OR [gene]) AND NOT [review]
package query

import (
	"fmt"
	"strings"
)

// Connectors accepted between terms and groups. NOT only appears as
// part of AND NOT.
var validOperators = []string{" AND ", " OR ", " AND NOT "}

// MalformedQueryError reports a query that fails structural validation.
type MalformedQueryError struct {
	Query  string
	Reason string
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("malformed query %q: %s", e.Query, e.Reason)
}

// Validate checks the structure of a query and returns a
// *MalformedQueryError when it is not well formed. It verifies that the
// query starts and ends on a term or group boundary, that parentheses
// balance, that every term is non-empty and that the text between terms
// is exactly one of the valid connectors.
func Validate(q string) error {
	fail := func(reason string) error {
		return &MalformedQueryError{Query: q, Reason: reason}
	}

	if len(q) < 3 {
		return fail("query too short")
	}
	if q[0] != '(' && q[0] != '[' {
		return fail("query must start with a term or group")
	}
	if q[len(q)-1] != ')' && q[len(q)-1] != ']' {
		return fail("query must end with a term or group")
	}

	depth := 0
	for _, r := range q {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fail("unbalanced parentheses")
			}
		}
	}
	if depth != 0 {
		return fail("unbalanced parentheses")
	}

	// Connectors are validated between operands within each group, so
	// parentheses cannot split a connector into valid-looking pieces.
	insideTerm := false
	afterOperand := false
	var term, operator strings.Builder
	for _, r := range q {
		if insideTerm {
			if r == ']' {
				if strings.TrimSpace(term.String()) == "" {
					return fail("empty term")
				}
				term.Reset()
				insideTerm = false
				afterOperand = true
				continue
			}
			term.WriteRune(r)
			continue
		}
		switch r {
		case '[', '(':
			if afterOperand {
				if !isValidOperator(operator.String()) {
					return fail(fmt.Sprintf("invalid connector %q", operator.String()))
				}
			} else if operator.Len() > 0 {
				return fail(fmt.Sprintf("unexpected text %q before term", operator.String()))
			}
			operator.Reset()
			afterOperand = false
			if r == '[' {
				insideTerm = true
			}
		case ')':
			if operator.Len() > 0 {
				return fail(fmt.Sprintf("trailing text %q before group close", operator.String()))
			}
			afterOperand = true
		default:
			operator.WriteRune(r)
		}
	}

	if insideTerm {
		return fail("unterminated term")
	}
	if operator.Len() > 0 {
		return fail(fmt.Sprintf("trailing text %q after last term", operator.String()))
	}
	return nil
}

func isValidOperator(s string) bool {
	for _, op := range validOperators {
		if s == op {
			return true
		}
	}
	return false
}

// ApplyToTerms rewrites the text of every bracket-enclosed term with fn,
// keeping the brackets and everything between terms untouched.
func ApplyToTerms(q string, fn func(term string) string) string {
	var out, term strings.Builder
	insideTerm := false
	for _, r := range q {
		switch {
		case insideTerm && r == ']':
			out.WriteString(fn(term.String()))
			out.WriteRune(']')
			term.Reset()
			insideTerm = false
		case insideTerm:
			term.WriteRune(r)
		case r == '[':
			out.WriteRune('[')
			insideTerm = true
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

// RewriteEnclosures replaces the opening and closing bracket of every
// term with the given strings. PubMed uses it to turn [term] into
// "term"[TIAB].
func RewriteEnclosures(q, open, close string) string {
	var out strings.Builder
	insideTerm := false
	for _, r := range q {
		switch {
		case insideTerm && r == ']':
			out.WriteString(close)
			insideTerm = false
		case !insideTerm && r == '[':
			out.WriteString(open)
			insideTerm = true
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}
