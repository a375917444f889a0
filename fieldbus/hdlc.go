package fieldbus

import "fmt"

// HDLC-style byte stuffing (§4.6): frames are delimited by flagByte and any
// occurrence of flagByte or escapeByte within the frame body is escaped.
const (
	flagByte   byte = 0x7E
	escapeByte byte = 0x7D
	escapeXOR  byte = 0x20
)

// stuff escapes flagByte and escapeByte occurrences within data and wraps
// the result in flag delimiters.
func stuff(data []byte) []byte {
	out := make([]byte, 0, len(data)+4)
	out = append(out, flagByte)
	for _, b := range data {
		if b == flagByte || b == escapeByte {
			out = append(out, escapeByte, b^escapeXOR)
		} else {
			out = append(out, b)
		}
	}
	out = append(out, flagByte)
	return out
}

// unstuff reverses stuff, given a buffer that begins and ends with
// flagByte. It is the exact inverse: unstuff(stuff(b)) == b for any b.
func unstuff(framed []byte) ([]byte, error) {
	if len(framed) < 2 || framed[0] != flagByte || framed[len(framed)-1] != flagByte {
		return nil, fmt.Errorf("fieldbus: frame missing flag delimiters")
	}
	body := framed[1 : len(framed)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b == flagByte {
			return nil, fmt.Errorf("fieldbus: unescaped flag byte inside frame")
		}
		if b == escapeByte {
			i++
			if i >= len(body) {
				return nil, fmt.Errorf("fieldbus: truncated escape sequence")
			}
			out = append(out, body[i]^escapeXOR)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
