// Package report renders generated documents for download.
//
// A Generator turns a Document into one output format. The model's output
// is parsed into headings, list items and paragraphs once, so every format
// lays out the same structure.
package report

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// Format identifies an output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatDOCX     Format = "docx"
)

// ContentTypeDOCX is the MIME type of Word documents.
const ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// =============================================================================
// Generator Interface
// =============================================================================

// Generator renders a Document in one format.
type Generator interface {
	// Generate writes the document to w and returns the bytes written.
	Generate(ctx context.Context, doc *Document, w io.Writer) (int64, error)

	Format() Format
	ContentType() string
}

// Document is a generated draft ready for export.
type Document struct {
	Title        string
	Organization string
	Author       string
	Model        string
	GeneratedAt  time.Time
	Body         string
}

// =============================================================================
// Blocks
// =============================================================================

// BlockKind classifies a line group of the document body.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockBullet
	BlockNumbered
)

// Block is one structural element of the body.
type Block struct {
	Kind  BlockKind
	Level int // heading level, 1-3
	Text  string
}

// ParseBlocks splits a markdown-style body into blocks. Consecutive plain
// lines join into one paragraph; blank lines end it.
func ParseBlocks(body string) []Block {
	var blocks []Block
	var para []string

	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: strings.Join(para, "\n")})
			para = nil
		}
	}

	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flush()
		case strings.HasPrefix(trimmed, "#"):
			flush()
			level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			if level > 3 {
				level = 3
			}
			blocks = append(blocks, Block{Kind: BlockHeading, Level: level, Text: strings.TrimSpace(strings.TrimLeft(trimmed, "#"))})
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "), strings.HasPrefix(trimmed, "・"):
			flush()
			text := strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(trimmed, "- "), "* "), "・")
			blocks = append(blocks, Block{Kind: BlockBullet, Text: strings.TrimSpace(text)})
		case isNumbered(trimmed):
			flush()
			blocks = append(blocks, Block{Kind: BlockNumbered, Text: trimmed})
		default:
			para = append(para, trimmed)
		}
	}
	flush()
	return blocks
}

// isNumbered reports lines like "1. ..." or "2) ...".
func isNumbered(s string) bool {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i > 0 && i < len(s)-1 && (s[i] == '.' || s[i] == ')') && s[i+1] == ' '
}

// =============================================================================
// Brand Colors
// =============================================================================

// BrandColors is the console palette used in exported documents.
var BrandColors = struct {
	Indigo    string
	TextDark  string
	TextMuted string
}{
	Indigo:    "#1F3A93",
	TextDark:  "#1F2937",
	TextMuted: "#6B7280",
}

// HexToRGB converts a hex color string to RGB values.
// Input format: "#RRGGBB" or "RRGGBB"
func HexToRGB(hex string) (r, g, b uint8) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}
	return hexToDec(hex[0:2]), hexToDec(hex[2:4]), hexToDec(hex[4:6])
}

func hexToDec(hex string) uint8 {
	var val uint8
	for _, c := range hex {
		val *= 16
		switch {
		case c >= '0' && c <= '9':
			val += uint8(c - '0')
		case c >= 'a' && c <= 'f':
			val += uint8(c - 'a' + 10)
		case c >= 'A' && c <= 'F':
			val += uint8(c - 'A' + 10)
		}
	}
	return val
}

// =============================================================================
// Text Formatting Helpers
// =============================================================================

// FormatDate formats a date the way Japanese public documents do.
func FormatDate(t time.Time) string {
	return t.Format("2006年1月2日")
}

// TruncateText shortens text to maxRunes runes, adding an ellipsis.
func TruncateText(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	if maxRunes <= 1 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-1]) + "…"
}

// ForFormat returns the generator for f.
func ForFormat(f Format) (Generator, bool) {
	switch f {
	case FormatMarkdown:
		return NewMarkdownGenerator(), true
	case FormatDOCX:
		return NewDOCXGenerator(), true
	}
	return nil, false
}
