package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_Layout(t *testing.T) {
	tests := []struct {
		name  string
		build func(d *Document)
		want  string
	}{
		{
			name:  "key value",
			build: func(d *Document) { d.KeyValue("Total", "Rs 10.00") },
			want:  "Total       Rs 10.00\n",
		},
		{
			name:  "key value overflow keeps one space",
			build: func(d *Document) { d.KeyValue("A very long label", "Rs 10.00") },
			want:  "A very long label Rs 10.00\n",
		},
		{
			name:  "item line truncates name",
			build: func(d *Document) { d.ItemLine(2, "Very long product name", "Rs 5.00") },
			want:  "2x Very long Rs 5.00\n",
		},
		{
			name:  "separator",
			build: func(d *Document) { d.Separator('-') },
			want:  "--------------------\n",
		},
		{
			name:  "text counts runes",
			build: func(d *Document) { d.Text("₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹") },
			want:  "₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹₹\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDocument(20)
			tt.build(d)
			assert.Equal(t, "\x1b@"+tt.want, string(d.Bytes()))
		})
	}
}

func TestDocument_Commands(t *testing.T) {
	d := NewDocument(0)
	assert.Equal(t, Width58mm, d.Width())

	d.SetAlign(AlignCenter).SetBold(true).SetFontSize(FontDouble).Cut()

	assert.Equal(t, []byte{
		0x1b, '@',
		0x1b, 'a', 1,
		0x1b, 'E', 1,
		0x1d, '!', 0x11,
		0x1d, 'V', 0,
	}, d.Bytes())
}
