package extract

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/healthassist/internal/models"
)

// extractPDF concatenates the text of every page, one newline between pages.
// The reader panics on some malformed xref tables; that is reported as unreadable.
func extractPDF(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed PDF: %v", models.ErrUnreadableFile, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: open PDF: %v", models.ErrUnreadableFile, err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		buf.WriteString(pageText(page))
		if i < numPages {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}

// lineTolerance is how far, in text space units, the baseline may move
// before a run counts as a new line.
const lineTolerance = 0.5

// tjSpace is the TJ adjustment (thousandths of an em) read as a word gap.
const tjSpace = -200

// pageText returns the page text with a newline wherever the baseline moves.
// GetPlainText only breaks on BT and T*, which runs lines placed with Td
// together. The text line matrix is tracked for Td, TD, Tm, T*, ' and ";
// CTM transforms are ignored.
func pageText(p pdf.Page) string {
	strm := p.V.Key("Contents")
	if strm.Kind() == pdf.Null {
		return ""
	}
	fonts := make(map[string]pdf.TextEncoding)
	for _, name := range p.Fonts() {
		fonts[name] = p.Font(name).Encoder()
	}

	t := &textWriter{}
	var enc pdf.TextEncoding
	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		switch op {
		case "BT":
			t.x, t.y = 0, 0
			t.gap = true
		case "Tf":
			if len(args) == 2 {
				enc = fonts[args[0].Name()]
			}
		case "TL":
			if len(args) == 1 {
				t.leading = args[0].Float64()
			}
		case "Td", "TD":
			if len(args) == 2 {
				ty := args[1].Float64()
				if op == "TD" {
					t.leading = -ty
				}
				t.moveTo(t.x+args[0].Float64(), t.y+ty)
			}
		case "Tm":
			if len(args) == 6 {
				t.moveTo(args[4].Float64(), args[5].Float64())
			}
		case "T*":
			t.nextLine()
		case "'", "\"":
			t.nextLine()
			if len(args) > 0 {
				t.show(decode(enc, args[len(args)-1].RawString()))
			}
		case "Tj":
			if len(args) == 1 {
				t.show(decode(enc, args[0].RawString()))
			}
		case "TJ":
			if len(args) != 1 {
				return
			}
			v := args[0]
			for i := 0; i < v.Len(); i++ {
				x := v.Index(i)
				switch x.Kind() {
				case pdf.String:
					t.show(decode(enc, x.RawString()))
				case pdf.Integer, pdf.Real:
					if x.Float64() <= tjSpace {
						t.gap = true
					}
				}
			}
		}
	})
	return t.b.String()
}

func decode(enc pdf.TextEncoding, raw string) string {
	if enc == nil {
		return raw
	}
	return enc.Decode(raw)
}

// textWriter accumulates runs, breaking lines when the baseline moves.
type textWriter struct {
	b       strings.Builder
	x, y    float64
	leading float64
	shown   bool    // a run has been written
	lastY   float64 // baseline of the last run
	brk     bool    // T* or ' seen since the last run
	gap     bool    // separate the next run from the previous one
}

func (t *textWriter) moveTo(x, y float64) {
	if x != t.x {
		t.gap = true
	}
	t.x, t.y = x, y
}

func (t *textWriter) nextLine() {
	t.y -= t.leading
	t.x = 0
	t.brk = true
}

func (t *textWriter) show(s string) {
	if s == "" {
		return
	}
	if t.shown {
		switch {
		case t.brk || math.Abs(t.y-t.lastY) > lineTolerance:
			t.b.WriteByte('\n')
		case t.gap && !endsWithSpace(t.b.String()) && !strings.HasPrefix(s, " "):
			t.b.WriteByte(' ')
		}
	}
	t.b.WriteString(s)
	t.shown = true
	t.lastY = t.y
	t.brk, t.gap = false, false
}

func endsWithSpace(s string) bool {
	return strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\t") || strings.HasSuffix(s, "\n")
}
