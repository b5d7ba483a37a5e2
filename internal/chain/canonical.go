package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"unicode/utf16"
)

// Canonical returns the bytes a block's hash is computed over: the block
// without its hash field, as sorted-key JSON with ", " and ": " separators
// and every code point outside printable ASCII escaped as \uXXXX (UTF-16
// surrogate pairs above U+FFFF). This is the text json.dumps(block,
// sort_keys=True) produces, so chains written by either side verify on the
// other.
func Canonical(b Block) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"data": `)
	writeString(&buf, b.Data)
	buf.WriteString(`, "index": `)
	buf.WriteString(strconv.Itoa(b.Index))
	buf.WriteString(`, "prev": `)
	writeString(&buf, b.Prev)
	buf.WriteString(`, "time": `)
	writeString(&buf, b.Time)
	buf.WriteByte('}')
	return buf.Bytes()
}

// ComputeHash returns the lower-case hex SHA-256 of Canonical(b).
func ComputeHash(b Block) string {
	sum := sha256.Sum256(Canonical(b))
	return hex.EncodeToString(sum[:])
}

const hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	// invalid UTF-8 ranges as U+FFFD
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				buf.WriteByte(byte(r))
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				writeEscape(buf, hi)
				writeEscape(buf, lo)
			default:
				writeEscape(buf, r)
			}
		}
	}
	buf.WriteByte('"')
}

func writeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xf])
	buf.WriteByte(hexDigits[(r>>8)&0xf])
	buf.WriteByte(hexDigits[(r>>4)&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}
