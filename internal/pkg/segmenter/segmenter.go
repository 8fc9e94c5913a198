// Package segmenter turns extracted PDF text into ordered, size-bounded chunks
// ("pages"). Pagination is a size heuristic, not a reconstruction of the PDF
// layout.
package segmenter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxChunkChars bounds every chunk, counted in characters. A single word
	// longer than this is still emitted whole.
	MaxChunkChars = 2000
	// MinChunkChars is the noise floor: chunks whose trimmed length does not
	// exceed it are dropped.
	MinChunkChars = 10

	paragraphSep = "\n\n"
	lineSep      = "\n"
	wordSep      = " "
)

var (
	junkMarkers = []string{"<E2>", "<C3>", "<A9>", "<AA>", "<BB>"}

	// Latin-1 misreads of UTF-8 accented characters seen in pdftotext output.
	mojibake = strings.NewReplacer(
		"Ãras", "érase",
		"Ã±", "ñ",
		"Ã©", "é",
		"Ã¡", "á",
		"Ãº", "ú",
		"Ã³", "ó",
		"Ã\u00ad", "í",
	)

	blockGap   = regexp.MustCompile(`\n{3,}`)
	excessGaps = regexp.MustCompile(`\n{4,}`)
)

// Segment normalizes raw and splits it into chunks of at most MaxChunkChars.
// The result is deterministic for a given input.
func Segment(raw string) []string {
	text := Normalize(raw)
	if text == "" {
		return nil
	}

	var chunks []string
	if charLen(text) <= MaxChunkChars {
		chunks = []string{text}
	} else {
		for _, block := range blockGap.Split(text, -1) {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			if charLen(block) <= MaxChunkChars {
				chunks = append(chunks, block)
				continue
			}
			chunks = append(chunks, splitBlock(block)...)
		}
	}

	out := chunks[:0]
	for _, c := range chunks {
		if charLen(strings.TrimSpace(c)) > MinChunkChars {
			out = append(out, c)
		}
	}
	return out
}

// Normalize cleans extracted text: invalid UTF-8, junk markers, known
// mis-decoded accents and control characters are removed, horizontal
// whitespace collapses to single spaces, lines are trimmed and runs of more
// than two blank lines collapse to two.
func Normalize(raw string) string {
	text := strings.ToValidUTF8(raw, "")
	for _, m := range junkMarkers {
		text = strings.ReplaceAll(text, m, "")
	}
	text = mojibake.Replace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = collapseLine(line)
	}
	text = strings.Join(lines, "\n")
	text = excessGaps.ReplaceAllString(text, "\n\n\n")
	return strings.TrimSpace(text)
}

func collapseLine(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	pendingSpace := false
	for _, r := range line {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r):
			// dropped
		default:
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitBlock packs the paragraphs of an oversized block greedily. Paragraphs
// that are oversized on their own are packed line by line, see packLines.
func splitBlock(block string) []string {
	var out []string
	var buf string
	flush := func() {
		if buf != "" {
			out = append(out, buf)
			buf = ""
		}
	}

	for _, para := range strings.Split(block, paragraphSep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if charLen(para) > MaxChunkChars {
			flush()
			out = append(out, packLines(para)...)
			continue
		}
		if buf == "" {
			buf = para
			continue
		}
		if charLen(buf)+charLen(paragraphSep)+charLen(para) <= MaxChunkChars {
			buf += paragraphSep + para
			continue
		}
		flush()
		buf = para
	}
	flush()
	return out
}

// packLines packs the lines of an oversized paragraph. Lines that are
// oversized on their own are packed word by word.
func packLines(para string) []string {
	var out, lines []string
	for _, line := range strings.Split(para, lineSep) {
		if charLen(line) <= MaxChunkChars {
			lines = append(lines, line)
			continue
		}
		out = append(out, pack(lines, lineSep)...)
		lines = nil
		out = append(out, pack(strings.Fields(line), wordSep)...)
	}
	return append(out, pack(lines, lineSep)...)
}

func pack(parts []string, sep string) []string {
	var out []string
	var buf string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if buf == "" {
			buf = part
			continue
		}
		if charLen(buf)+charLen(sep)+charLen(part) <= MaxChunkChars {
			buf += sep + part
			continue
		}
		out = append(out, buf)
		buf = part
	}
	if buf != "" {
		out = append(out, buf)
	}
	return out
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
