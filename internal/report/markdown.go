package report

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// MarkdownGenerator writes the document as markdown with a metadata header.
type MarkdownGenerator struct{}

// NewMarkdownGenerator creates a new markdown generator.
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

func (g *MarkdownGenerator) Format() Format { return FormatMarkdown }

func (g *MarkdownGenerator) ContentType() string { return "text/markdown; charset=utf-8" }

// Generate writes the title, a metadata line and the body blocks.
func (g *MarkdownGenerator) Generate(ctx context.Context, doc *Document, w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	if meta := metadataLine(doc); meta != "" {
		fmt.Fprintf(&b, "_%s_\n\n", meta)
	}

	for _, blk := range ParseBlocks(doc.Body) {
		switch blk.Kind {
		case BlockHeading:
			// The title owns level 1.
			fmt.Fprintf(&b, "%s %s\n\n", strings.Repeat("#", min(blk.Level+1, 4)), blk.Text)
		case BlockBullet:
			fmt.Fprintf(&b, "- %s\n", blk.Text)
		case BlockNumbered:
			fmt.Fprintf(&b, "%s\n", blk.Text)
		default:
			fmt.Fprintf(&b, "%s\n\n", blk.Text)
		}
	}

	n, err := io.WriteString(w, strings.TrimRight(b.String(), "\n")+"\n")
	return int64(n), err
}

func metadataLine(doc *Document) string {
	var parts []string
	if doc.Organization != "" {
		parts = append(parts, doc.Organization)
	}
	if !doc.GeneratedAt.IsZero() {
		parts = append(parts, FormatDate(doc.GeneratedAt))
	}
	if doc.Model != "" {
		parts = append(parts, "AI下書き ("+doc.Model+")")
	}
	return strings.Join(parts, " / ")
}
