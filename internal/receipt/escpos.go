package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ESC/POS command bytes.
const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
)

// Text alignment.
const (
	AlignLeft   = 0
	AlignCenter = 1
	AlignRight  = 2
)

// Character sizes.
const (
	FontNormal = 0x00
	FontDouble = 0x11
)

// Common paper widths in characters.
const (
	Width58mm = 32
	Width80mm = 48
)

// Document builds an ESC/POS byte stream for thermal printers.
type Document struct {
	buf   bytes.Buffer
	width int
}

// NewDocument creates a document with the given character width.
func NewDocument(charWidth int) *Document {
	if charWidth <= 0 {
		charWidth = Width58mm
	}
	d := &Document{width: charWidth}
	d.Init()
	return d
}

// Width returns the line width in characters.
func (d *Document) Width() int { return d.width }

// Init sends ESC @.
func (d *Document) Init() *Document {
	d.buf.Write([]byte{esc, '@'})
	return d
}

// FeedLines sends n line feeds.
func (d *Document) FeedLines(n int) *Document {
	for i := 0; i < n; i++ {
		d.buf.WriteByte(lf)
	}
	return d
}

// SetAlign sets text alignment.
func (d *Document) SetAlign(align int) *Document {
	d.buf.Write([]byte{esc, 'a', byte(align)})
	return d
}

// SetBold enables or disables bold text.
func (d *Document) SetBold(on bool) *Document {
	b := byte(0)
	if on {
		b = 1
	}
	d.buf.Write([]byte{esc, 'E', b})
	return d
}

// SetFontSize sets the character size.
func (d *Document) SetFontSize(size byte) *Document {
	d.buf.Write([]byte{gs, '!', size})
	return d
}

// Text writes a line, truncated to the paper width.
func (d *Document) Text(s string) *Document {
	d.buf.WriteString(truncate(s, d.width))
	d.buf.WriteByte(lf)
	return d
}

// TextF writes a formatted line.
func (d *Document) TextF(format string, args ...any) *Document {
	return d.Text(fmt.Sprintf(format, args...))
}

// Separator prints a full-width line of char.
func (d *Document) Separator(char byte) *Document {
	d.buf.WriteString(strings.Repeat(string(char), d.width))
	d.buf.WriteByte(lf)
	return d
}

// KeyValue prints key left-aligned and value right-aligned on one line.
func (d *Document) KeyValue(key, value string) *Document {
	d.buf.WriteString(justify(key, value, d.width))
	d.buf.WriteByte(lf)
	return d
}

// ItemLine prints "qty x name" and a right-aligned total. Long names are
// truncated so the total always fits.
func (d *Document) ItemLine(qty int, name, total string) *Document {
	prefix := fmt.Sprintf("%dx ", qty)
	room := d.width - utf8.RuneCountInString(prefix) - utf8.RuneCountInString(total) - 1
	d.buf.WriteString(justify(prefix+truncate(name, room), total, d.width))
	d.buf.WriteByte(lf)
	return d
}

// Cut sends a full paper cut.
func (d *Document) Cut() *Document {
	d.buf.Write([]byte{gs, 'V', 0x00})
	return d
}

// Bytes returns the accumulated byte stream.
func (d *Document) Bytes() []byte {
	return d.buf.Bytes()
}

func justify(left, right string, width int) string {
	spaces := width - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if spaces < 1 {
		spaces = 1
	}
	return left + strings.Repeat(" ", spaces) + right
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
