package materializer

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

var unistrCall = regexp.MustCompile(`(?i)unistr\s*\(\s*('(?:[^']|'')*'|"[^"]*")\s*\)`)

// NormalizeUnistr rewrites unistr('...') calls into plain SQL string literals.
// Escapes of the form \XXXX are decoded as UTF-16 code units. Calls whose
// argument cannot be decoded are reduced to the bare literal.
func NormalizeUnistr(sql string) string {
	out := unistrCall.ReplaceAllStringFunc(sql, func(call string) string {
		m := unistrCall.FindStringSubmatch(call)
		decoded, ok := decodeUnistr(unquote(m[1]))
		if !ok {
			return call
		}
		return quote(decoded)
	})
	return unistrCall.ReplaceAllString(out, "$1")
}

func unquote(literal string) string {
	body := literal[1 : len(literal)-1]
	if literal[0] == '\'' {
		body = strings.ReplaceAll(body, "''", "'")
	}
	return body
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// decodeUnistr expands \XXXX and \\XXXX escapes. It reports false when the
// escapes produce an unpaired surrogate.
func decodeUnistr(s string) (string, bool) {
	if !strings.Contains(s, `\`) {
		return s, true
	}

	var (
		b     strings.Builder
		units []uint16
	)
	flush := func() bool {
		if len(units) == 0 {
			return true
		}
		for i := 0; i < len(units); i++ {
			u := rune(units[i])
			switch {
			case utf16.IsSurrogate(u) && u < 0xdc00:
				if i+1 >= len(units) || units[i+1] < 0xdc00 || units[i+1] > 0xdfff {
					return false
				}
				b.WriteRune(utf16.DecodeRune(u, rune(units[i+1])))
				i++
			case utf16.IsSurrogate(u):
				return false
			default:
				b.WriteRune(u)
			}
		}
		units = units[:0]
		return true
	}

	for i := 0; i < len(s); {
		if s[i] != '\\' {
			if !flush() {
				return "", false
			}
			b.WriteByte(s[i])
			i++
			continue
		}
		if u, ok := hexUnit(s, i+1); ok {
			units = append(units, u)
			i += 5
			continue
		}
		if i+1 < len(s) && s[i+1] == '\\' {
			if u, ok := hexUnit(s, i+2); ok {
				units = append(units, u)
				i += 6
				continue
			}
			if !flush() {
				return "", false
			}
			b.WriteByte('\\')
			i += 2
			continue
		}
		if !flush() {
			return "", false
		}
		b.WriteByte('\\')
		i++
	}
	if !flush() {
		return "", false
	}
	return b.String(), true
}

func hexUnit(s string, at int) (uint16, bool) {
	if at+4 > len(s) {
		return 0, false
	}
	var v uint16
	for _, c := range []byte(s[at : at+4]) {
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, false
		}
		v = v<<4 | uint16(d)
	}
	return v, true
}
