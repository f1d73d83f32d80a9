package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/unidoc/unioffice/color"
	"github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/measurement"
)

// SetLicenseKey installs the unioffice metered license key.
func SetLicenseKey(key string) error {
	if key == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("set unioffice license: %w", err)
	}
	return nil
}

// =============================================================================
// DOCX Generator
// =============================================================================

// DOCXGenerator renders documents as Word files.
type DOCXGenerator struct{}

// NewDOCXGenerator creates a new DOCX generator.
func NewDOCXGenerator() *DOCXGenerator {
	return &DOCXGenerator{}
}

func (g *DOCXGenerator) Format() Format { return FormatDOCX }

func (g *DOCXGenerator) ContentType() string { return ContentTypeDOCX }

// Generate creates a DOCX file and writes it to w.
func (g *DOCXGenerator) Generate(ctx context.Context, data *Document, w io.Writer) (int64, error) {
	doc := document.New()
	defer doc.Close()

	props := doc.CoreProperties
	props.SetTitle(data.Title)
	if data.Author != "" {
		props.SetAuthor(data.Author)
	}

	g.addTitle(doc, data)
	for _, blk := range ParseBlocks(data.Body) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		g.addBlock(doc, blk)
	}
	g.addFooterNote(doc, data)

	// Write to buffer to count bytes
	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return 0, fmt.Errorf("docx save error: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// =============================================================================
// Sections
// =============================================================================

func (g *DOCXGenerator) addTitle(doc *document.Document, data *Document) {
	title := doc.AddParagraph()
	titleRun := title.AddRun()
	titleRun.Properties().SetBold(true)
	titleRun.Properties().SetSize(20 * measurement.Point)
	titleRun.Properties().SetColor(brandColor(BrandColors.Indigo))
	titleRun.AddText(data.Title)
	title.Properties().SetSpacing(0, 8*measurement.Point)

	if meta := metadataLine(data); meta != "" {
		p := doc.AddParagraph()
		run := p.AddRun()
		run.Properties().SetSize(9 * measurement.Point)
		run.Properties().SetColor(brandColor(BrandColors.TextMuted))
		run.AddText(meta)
		p.Properties().SetSpacing(0, 16*measurement.Point)
	}
}

func (g *DOCXGenerator) addBlock(doc *document.Document, blk Block) {
	switch blk.Kind {
	case BlockHeading:
		sizes := map[int]measurement.Distance{1: 16, 2: 14, 3: 12}
		para := doc.AddParagraph()
		run := para.AddRun()
		run.Properties().SetBold(true)
		run.Properties().SetSize(sizes[blk.Level] * measurement.Point)
		if blk.Level == 1 {
			run.Properties().SetColor(brandColor(BrandColors.Indigo))
		}
		run.AddText(blk.Text)
		para.Properties().SetSpacing(12*measurement.Point, 6*measurement.Point)

	case BlockBullet:
		g.addTextLine(doc, "・"+blk.Text, 12*measurement.Point)

	case BlockNumbered:
		g.addTextLine(doc, blk.Text, 12*measurement.Point)

	default:
		para := doc.AddParagraph()
		lines := strings.Split(blk.Text, "\n")
		for i, line := range lines {
			run := para.AddRun()
			run.AddText(line)
			if i < len(lines)-1 {
				run.AddBreak()
			}
		}
		para.Properties().SetSpacing(0, 6*measurement.Point)
	}
}

func (g *DOCXGenerator) addFooterNote(doc *document.Document, data *Document) {
	if data.Model == "" {
		return
	}
	sep := doc.AddParagraph()
	sep.Properties().SetSpacing(18*measurement.Point, 4*measurement.Point)
	sepRun := sep.AddRun()
	sepRun.Properties().SetColor(color.LightGray)
	sepRun.AddText("────────────────────────────────────────")

	note := doc.AddParagraph()
	run := note.AddRun()
	run.Properties().SetItalic(true)
	run.Properties().SetSize(8 * measurement.Point)
	run.Properties().SetColor(color.Gray)
	run.AddText("この文書はAIが作成した下書きです。内容を確認のうえご利用ください。")
}

// =============================================================================
// Helper Methods
// =============================================================================

func (g *DOCXGenerator) addTextLine(doc *document.Document, text string, indent measurement.Distance) {
	para := doc.AddParagraph()
	para.Properties().SetStartIndent(indent)
	para.AddRun().AddText(text)
}

func brandColor(hex string) color.Color {
	r, g, b := HexToRGB(hex)
	return color.RGB(r, g, b)
}
