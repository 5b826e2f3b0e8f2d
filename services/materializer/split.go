package materializer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitStatements breaks a SQL dump into individual statements. Semicolons
// inside quoted strings, identifiers, comments and trigger bodies do not end
// a statement. Returned statements are trimmed and keep no trailing semicolon.
func SplitStatements(sql string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)

	emit := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s != "" {
			stmts = append(stmts, s)
		}
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := closingQuote(sql, i, c)
			cur.WriteString(sql[i:end])
			i = end - 1
		case c == '[':
			end := strings.IndexByte(sql[i:], ']')
			if end < 0 {
				cur.WriteString(sql[i:])
				i = len(sql)
				continue
			}
			cur.WriteString(sql[i : i+end+1])
			i += end
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
				continue
			}
			i += end
			cur.WriteByte('\n')
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
				continue
			}
			i += end + 3
			cur.WriteByte(' ')
		case c == ';':
			if inTriggerBody(cur.String()) {
				cur.WriteByte(c)
				continue
			}
			emit()
		default:
			cur.WriteByte(c)
		}
	}
	emit()
	return stmts
}

// closingQuote returns the index just past the quoted run starting at start.
// A doubled quote character is an escaped quote.
func closingQuote(sql string, start int, q byte) int {
	for i := start + 1; i < len(sql); i++ {
		if sql[i] != q {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(sql)
}

// inTriggerBody reports whether stmt is a CREATE TRIGGER whose BEGIN block
// is still open. BEGIN and CASE open a block and END closes one; keywords
// inside quoted strings or identifiers are ignored.
func inTriggerBody(stmt string) bool {
	words := keywords(stmt)
	if len(words) < 2 || words[0] != "CREATE" {
		return false
	}
	isTrigger := false
	for _, w := range words[1:min(len(words), 4)] {
		if w == "TRIGGER" {
			isTrigger = true
			break
		}
	}
	if !isTrigger {
		return false
	}

	sawBegin := false
	depth := 0
	for _, w := range words {
		switch w {
		case "BEGIN":
			sawBegin = true
			depth++
		case "CASE":
			depth++
		case "END":
			if depth > 0 {
				depth--
			}
		}
	}
	return sawBegin && depth > 0
}

// keywords returns the upper-cased bare words of stmt, skipping quoted
// strings and identifiers.
func keywords(stmt string) []string {
	var (
		words []string
		word  strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToUpper(word.String()))
			word.Reset()
		}
	}

	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			flush()
			i = closingQuote(stmt, i, c) - 1
		case c == '[':
			flush()
			end := strings.IndexByte(stmt[i:], ']')
			if end < 0 {
				return words
			}
			i += end
		case c == '_' || c >= utf8.RuneSelf || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)):
			word.WriteByte(c)
		default:
			flush()
		}
	}
	flush()
	return words
}
