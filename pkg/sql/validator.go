// Package sql provides SQL validation utilities for read-only lakehouse queries.
package sql

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrNotReadOnly indicates the statement could modify data or schema.
	ErrNotReadOnly = errors.New("statement is not a read-only SELECT")

	// ErrEmptyQuery indicates the query has no content.
	ErrEmptyQuery = errors.New("query is empty")
)

// writeKeywords may not appear anywhere in a read-only statement.
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true,
	"CREATE": true, "ALTER": true, "DROP": true, "TRUNCATE": true, "RENAME": true,
	"GRANT": true, "REVOKE": true, "COPY": true, "ATTACH": true, "DETACH": true,
	"EXEC": true, "EXECUTE": true, "CALL": true, "INTO": true, "VACUUM": true,
	"INSTALL": true, "LOAD": true, "PRAGMA": true, "SET": true,
}

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks SQL for multiple statements and strips the trailing semicolon.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// ValidateReadOnly normalizes the query and rejects anything other than a
// single SELECT (optionally introduced by WITH).
func ValidateReadOnly(sqlQuery string) ValidationResult {
	result := ValidateAndNormalize(sqlQuery)
	if result.Error != nil {
		return result
	}
	if result.NormalizedSQL == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	tokens := scanTokens(result.NormalizedSQL)
	if len(tokens) == 0 {
		return ValidationResult{Error: ErrEmptyQuery}
	}
	if first := tokens[0].word; first != "SELECT" && first != "WITH" {
		return ValidationResult{Error: ErrNotReadOnly}
	}
	for _, tok := range tokens {
		if writeKeywords[tok.word] {
			return ValidationResult{Error: ErrNotReadOnly}
		}
	}
	return result
}

// HasTopLevelOrderBy reports whether the outermost query ends in an ORDER BY.
func HasTopLevelOrderBy(sqlQuery string) bool {
	tokens := scanTokens(sqlQuery)
	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i].depth == 0 && tokens[i].word == "ORDER" && tokens[i+1].word == "BY" {
			return true
		}
	}
	return false
}

// HasTopLevelLimit reports whether the outermost query already carries a
// LIMIT, TOP or FETCH clause.
func HasTopLevelLimit(sqlQuery string) bool {
	for _, tok := range scanTokens(sqlQuery) {
		if tok.depth != 0 {
			continue
		}
		switch tok.word {
		case "LIMIT", "TOP", "FETCH":
			return true
		}
	}
	return false
}

type token struct {
	word  string // upper-cased keyword or identifier
	depth int    // parenthesis nesting depth
}

// scanTokens returns the bare words of a query, skipping string literals,
// quoted identifiers and comments.
func scanTokens(sqlQuery string) []token {
	var tokens []token
	runes := []rune(sqlQuery)
	depth := 0

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closing := c
			if c == '[' {
				closing = ']'
			}
			i++
			for i < len(runes) {
				if runes[i] == closing {
					if i+1 < len(runes) && runes[i+1] == closing && closing != ']' {
						i += 2
						continue
					}
					break
				}
				i++
			}
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{word: strings.ToUpper(string(runes[start:i])), depth: depth})
			i--
		}
	}
	return tokens
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters the string.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
