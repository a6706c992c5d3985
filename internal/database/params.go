package database

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseValue interprets a parameter literal from the CLI or an MCP call:
// null, booleans and numbers become typed values, everything else stays a
// string.
func ParseValue(s string) any {
	switch s {
	case "null", "NULL":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Params carries query parameters in either positional or named form. Named
// parameters are rewritten to an equivalent ordered positional form before
// cache-key derivation and before reaching the engine, so cache-key logic is
// independent of caller style.
type Params struct {
	positional []any
	named      map[string]any
}

// Positional builds positional parameters. Order is semantically
// significant.
func Positional(values ...any) Params {
	return Params{positional: values}
}

// Named builds named parameters for queries using :name, @name or $name
// placeholders.
func Named(values map[string]any) Params {
	return Params{named: values}
}

// normalize returns the query with positional placeholders and the ordered
// argument list.
func (p Params) normalize(query string) (string, []any, error) {
	if p.named == nil {
		return query, p.positional, nil
	}
	return rewriteNamed(query, p.named)
}

// rewriteNamed replaces :name/@name/$name placeholders with '?' in source
// order, collecting the corresponding values. String literals, quoted
// identifiers and comments are skipped.
func rewriteNamed(query string, named map[string]any) (string, []any, error) {
	var out strings.Builder
	var args []any

	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			end := skipQuoted(query, i, c)
			out.WriteString(query[i:end])
			i = end
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query)
			} else {
				end += i
			}
			out.WriteString(query[i:end])
			i = end
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				end = len(query)
			} else {
				end += i + 4
			}
			out.WriteString(query[i:end])
			i = end
		case c == ':' || c == '@' || c == '$':
			start := i + 1
			end := start
			for end < len(query) && isIdentChar(query[end]) {
				end++
			}
			if end == start {
				out.WriteByte(c)
				i++
				continue
			}
			name := query[start:end]
			value, ok := named[name]
			if !ok {
				return "", nil, fmt.Errorf("missing value for named parameter %q", name)
			}
			out.WriteByte('?')
			args = append(args, value)
			i = end
		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String(), args, nil
}

func skipQuoted(s string, start int, quote byte) int {
	i := start + 1
	for i < len(s) {
		if s[i] == quote {
			// Doubled quotes escape inside SQL literals.
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(s)
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// normalizeText collapses runs of whitespace so formatting differences do
// not split the cache.
func normalizeText(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// cacheKey derives a stable key from the normalized query text and the
// ordered parameter values. Parameter order is significant: two orderings
// that differ produce different keys.
func cacheKey(query string, args []any) string {
	h := sha256.New()
	h.Write([]byte(normalizeText(query)))
	h.Write([]byte{0})
	enc, err := json.Marshal(args)
	if err != nil {
		// Non-encodable values fall back to the fmt representation; the key
		// only has to be stable, not reversible.
		enc = []byte(fmt.Sprint(args...))
	}
	h.Write(enc)
	return hex.EncodeToString(h.Sum(nil))
}
