package workitem

import (
	"fmt"
	"strings"

	"github.com/drover-sh/drover/internal/errors"
)

// FileExt is the extension appended to an identity to form its filename.
const FileExt = ".md"

// Filename returns the on-disk name for an identity.
func Filename(id string) string {
	return id + FileExt
}

// IDFromFilename strips the extension from an item filename. Returns
// "", false for files that are not work items.
func IDFromFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, FileExt) {
		return "", false
	}
	return strings.TrimSuffix(name, FileExt), true
}

// Decode parses the wire form of a work item: a header block of
// "key: value" lines, one blank line, then the free-text body. The typed
// schema is validated here, once; downstream components trust the result.
func Decode(id string, data []byte) (*Item, error) {
	it := &Item{ID: id}

	header, body, found := strings.Cut(string(data), "\n\n")
	if !found {
		// Header-only items (no body) are legal.
		header = strings.TrimSuffix(string(data), "\n")
		body = ""
	}

	for _, line := range strings.Split(header, "\n") {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q", errors.ErrBadItem, line)
		}
		it.Fields = append(it.Fields, Field{
			Key:   strings.TrimSpace(key),
			Value: unescapeValue(strings.TrimSpace(value)),
		})
	}

	it.Body = body
	if err := it.Validate(); err != nil {
		return nil, err
	}
	return it, nil
}

// Encode renders the item back to its wire form. Header fields are
// emitted in their preserved order. The header format is line-oriented,
// so newlines inside values are escaped; Decode reverses the escaping
// and multi-line values (drafted replies in particular) round-trip
// intact.
func Encode(it *Item) []byte {
	var b strings.Builder
	for _, f := range it.Fields {
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(escapeValue(f.Value))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(it.Body)
	return []byte(b.String())
}

// escapeValue makes a value safe for a single header line: backslashes
// double and newlines become the two-character sequence \n.
func escapeValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, "\n", `\n`)
}

// unescapeValue reverses escapeValue. Unknown escape sequences pass
// through untouched so hand-written headers stay readable as written.
func unescapeValue(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			switch v[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}
