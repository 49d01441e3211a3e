// Package quotecard renders a quote as a square PNG card.
package quotecard

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultSize   = 1080
	maxQuoteSize  = 72.0
	minQuoteSize  = 26.0
	attribSize    = 34.0
	lineSpacing   = 1.3
	marginPercent = 9
)

// Card is what gets drawn.
type Card struct {
	Text      string
	Author    string
	Reference string
}

// Renderer draws cards. The zero value is usable and renders 1080×1080 cards.
type Renderer struct {
	Size       int
	Background color.Color
	Foreground color.Color
	Accent     color.Color

	once    sync.Once
	regular *truetype.Font
	bold    *truetype.Font
	err     error
}

func (r *Renderer) load() error {
	r.once.Do(func() {
		if r.regular, r.err = truetype.Parse(goregular.TTF); r.err != nil {
			return
		}
		r.bold, r.err = truetype.Parse(gobold.TTF)
	})
	return r.err
}

func (r *Renderer) size() int {
	if r.Size > 0 {
		return r.Size
	}
	return DefaultSize
}

func orColor(c color.Color, def color.RGBA) color.Color {
	if c != nil {
		return c
	}
	return def
}

// Render draws c. The quote is wrapped and shrunk until it fits above the attribution.
func (r *Renderer) Render(c Card) (*image.RGBA, error) {
	if err := r.load(); err != nil {
		return nil, fmt.Errorf("quotecard: load font: %w", err)
	}
	size := r.size()
	bg := orColor(r.Background, color.RGBA{0x1b, 0x1f, 0x2a, 0xff})
	fg := orColor(r.Foreground, color.RGBA{0xf5, 0xf1, 0xe8, 0xff})
	accent := orColor(r.Accent, color.RGBA{0xe0, 0xa4, 0x58, 0xff})

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	margin := size * marginPercent / 100
	maxWidth := size - 2*margin
	bar := image.Rect(margin, margin, margin+size/12, margin+size/120+2)
	draw.Draw(img, bar, image.NewUniform(accent), image.Point{}, draw.Src)

	attribution := attributionLine(c.Author, c.Reference)
	attribHeight := 0
	if attribution != "" {
		attribHeight = int(math.Floor(attribSize*lineSpacing)) * 2
	}
	available := size - 2*margin - attribHeight - bar.Dy()*4

	quote := "“" + strings.TrimSpace(c.Text) + "”"
	pt, lines := fitText(r.regular, quote, maxWidth, available)

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)
	ctx.SetHinting(font.HintingFull)

	ctx.SetFont(r.regular)
	ctx.SetFontSize(pt)
	ctx.SetSrc(image.NewUniform(fg))
	face := newFace(r.regular, pt)
	lineHeight := int(pt * lineSpacing)
	blockHeight := lineHeight * len(lines)
	top := margin + bar.Dy()*4 + (available-blockHeight)/2
	for i, line := range lines {
		x := margin + (maxWidth-font.MeasureString(face, line).Ceil())/2
		y := top + lineHeight*i + int(pt)
		if _, err := ctx.DrawString(line, freetype.Pt(x, y)); err != nil {
			return nil, fmt.Errorf("quotecard: draw quote: %w", err)
		}
	}

	if attribution != "" {
		ctx.SetFont(r.bold)
		ctx.SetFontSize(attribSize)
		ctx.SetSrc(image.NewUniform(accent))
		bface := newFace(r.bold, attribSize)
		aline := truncateToWidth(bface, attribution, fixed.I(maxWidth))
		x := margin + (maxWidth-font.MeasureString(bface, aline).Ceil())/2
		y := size - margin - int(math.Floor(attribSize*lineSpacing))/2
		if _, err := ctx.DrawString(aline, freetype.Pt(x, y)); err != nil {
			return nil, fmt.Errorf("quotecard: draw attribution: %w", err)
		}
	}
	return img, nil
}

// WritePNG renders c and encodes it to w.
func (r *Renderer) WritePNG(w io.Writer, c Card) error {
	img, err := r.Render(c)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(bw, img); err != nil {
		return fmt.Errorf("quotecard: encode png: %w", err)
	}
	return bw.Flush()
}

func attributionLine(author, reference string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{author, reference} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "— " + strings.Join(parts, " · ")
}

func newFace(f *truetype.Font, pt float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: pt, DPI: 72, Hinting: font.HintingFull})
}

// fitText picks the largest point size whose wrapped lines fit in maxHeight.
func fitText(f *truetype.Font, text string, maxWidth, maxHeight int) (float64, []string) {
	var lines []string
	pt := maxQuoteSize
	for ; pt >= minQuoteSize; pt -= 2 {
		lines = wrap(newFace(f, pt), text, fixed.I(maxWidth))
		if int(pt*lineSpacing)*len(lines) <= maxHeight {
			return pt, lines
		}
	}
	pt = minQuoteSize
	face := newFace(f, pt)
	lines = wrap(face, text, fixed.I(maxWidth))
	maxLines := maxHeight / int(pt*lineSpacing)
	if maxLines < 1 {
		maxLines = 1
	}
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines[maxLines-1] = truncateToWidth(face, lines[maxLines-1]+" …", fixed.I(maxWidth))
	}
	return pt, lines
}

// wrap breaks text on whitespace so each line measures at most maxWidth. A single word wider
// than maxWidth is split by runes.
func wrap(face font.Face, text string, maxWidth fixed.Int26_6) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if font.MeasureString(face, candidate) <= maxWidth {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
			}
			line = ""
			for font.MeasureString(face, word) > maxWidth {
				head := splitToWidth(face, word, maxWidth)
				lines = append(lines, head)
				word = word[len(head):]
			}
			line = word
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitToWidth(face font.Face, s string, maxWidth fixed.Int26_6) string {
	rs := []rune(s)
	n := 1
	for n < len(rs) && font.MeasureString(face, string(rs[:n+1])) <= maxWidth {
		n++
	}
	return string(rs[:n])
}

func truncateToWidth(face font.Face, s string, maxWidth fixed.Int26_6) string {
	if font.MeasureString(face, s) <= maxWidth {
		return s
	}
	rs := []rune(strings.TrimSuffix(s, " …"))
	for len(rs) > 0 && font.MeasureString(face, string(rs)+"…") > maxWidth {
		rs = rs[:len(rs)-1]
	}
	return strings.TrimRight(string(rs), " ") + "…"
}
