package filestore

import "strconv"

// ContentKind tags how Content was built.
type ContentKind uint8

const (
	KindText ContentKind = iota
	KindBytes
	KindChar
	// KindDecimal holds integers written as decimal text.
	KindDecimal
	// KindRaw holds integers written as one byte each.
	KindRaw
)

func (k ContentKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindChar:
		return "char"
	case KindDecimal:
		return "decimal"
	case KindRaw:
		return "raw"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Content is what SaveFile and AppendToFile write.
type Content struct {
	Kind ContentKind
	data []byte
}

// Text writes s as is.
func Text(s string) Content { return Content{Kind: KindText, data: []byte(s)} }

// Bytes writes b as is. b is not copied.
func Bytes(b []byte) Content { return Content{Kind: KindBytes, data: b} }

// Char writes a single byte.
func Char(c byte) Content { return Content{Kind: KindChar, data: []byte{c}} }

// Decimal writes values as comma separated decimal text: Decimal(1, -2, 30)
// writes "1,-2,30".
func Decimal(values ...int) Content {
	var b []byte
	for i, v := range values {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, int64(v), 10)
	}
	return Content{Kind: KindDecimal, data: b}
}

// Raw writes the low byte of each value.
func Raw(values ...int) Content {
	b := make([]byte, len(values))
	for i, v := range values {
		b[i] = byte(v)
	}
	return Content{Kind: KindRaw, data: b}
}

// Data returns the encoded bytes.
func (c Content) Data() []byte { return c.data }

func (c Content) Len() int { return len(c.data) }
