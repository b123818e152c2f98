package pdf

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"

	"studyhub/internal/services"
)

// DejaVu Sans covers Latin, Greek, Cyrillic and common symbols.
var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	regularFont []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	boldFont []byte
)

const fontFamily = "DejaVu"

// Section is one titled block of the study guide.
type Section struct {
	Key     string
	Heading string
	// Paragraphs are rendered as flowing text; Items as a bulleted list.
	Paragraphs []string
	Items      []string
}

// Document is the renderer input.
type Document struct {
	Title     string
	Subtitle  string
	CreatedAt time.Time
	// Image, when set, is embedded (PNG) above the sections.
	Image    []byte
	Sections []Section
	// Missing lists section headings that could not be produced.
	Missing []string
}

// SectionKeys returns the keys of the rendered sections in order.
func (d Document) SectionKeys() []string {
	keys := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		keys = append(keys, s.Key)
	}
	return keys
}

// Render lays the document out on A4 pages and returns the PDF bytes.
func Render(doc Document) ([]byte, error) {
	return render(doc, true)
}

func render(doc Document, compress bool) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.AddUTF8FontFromBytes(fontFamily, "", regularFont)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", boldFont)
	if pdf.Err() {
		return nil, services.Wrap(services.ErrAdapterRejected, "render_pdf", "load font", "", pdf.Error())
	}
	tr := fontSafe
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = "Study Guide"
	}
	pdf.SetTitle(title, true)
	pdf.SetAuthor("studyhub", false)
	pdf.SetCreator("studyhub", false)
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 18)
	pdf.MultiCell(0, 9, tr(title), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont(fontFamily, "", 10)
	meta := strings.TrimSpace(doc.Subtitle)
	if !doc.CreatedAt.IsZero() {
		stamp := doc.CreatedAt.Local().Format("Jan 2, 2006 15:04")
		if meta != "" {
			meta += " - " + stamp
		} else {
			meta = stamp
		}
	}
	if meta != "" {
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, tr(meta), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(6)

	if len(doc.Image) > 0 {
		if err := embedImage(pdf, doc.Image); err != nil {
			return nil, err
		}
	}

	for _, section := range doc.Sections {
		writeSection(pdf, tr, section)
		pdf.Ln(4)
	}

	if len(doc.Missing) > 0 {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(160, 40, 40)
		note := "Missing sections: " + strings.Join(doc.Missing, ", ") + ". These could not be generated for this recording."
		pdf.MultiCell(0, 5, tr(note), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, services.Wrap(services.ErrAdapterRejected, "render_pdf", "output", "", err)
	}
	return buf.Bytes(), nil
}

func embedImage(pdf *gofpdf.Fpdf, data []byte) error {
	const name = "whiteboard"
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if pdf.Err() || info == nil {
		return services.Wrap(services.ErrAdapterRejected, "render_pdf", "embed image", "", pdf.Error())
	}
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := pageW - left - right
	height := width * info.Height() / info.Width()
	const maxHeight = 150.0
	if height > maxHeight {
		width = width * maxHeight / height
		height = maxHeight
	}
	pdf.ImageOptions(name, left, pdf.GetY(), width, height, true, opts, 0, "")
	pdf.Ln(6)
	return nil
}

func writeSection(pdf *gofpdf.Fpdf, tr func(string) string, section Section) {
	pdf.SetFont(fontFamily, "B", 14)
	pdf.MultiCell(0, 8, tr(section.Heading), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont(fontFamily, "", 11)
	written := 0
	for _, para := range section.Paragraphs {
		for _, line := range strings.Split(para, "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			pdf.MultiCell(0, 6, tr(line), "", "L", false)
			written++
		}
		pdf.Ln(1)
	}
	for _, item := range section.Items {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("• %s", item)), "", "L", false)
		written++
	}
	if written == 0 {
		pdf.MultiCell(0, 6, "(empty)", "", "L", false)
	}
}

// fontSafe repairs invalid UTF-8 and replaces runes outside the Basic
// Multilingual Plane, which the embedded font tables cannot index.
func fontSafe(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.Map(func(r rune) rune {
		if r > 0xFFFE {
			return utf8.RuneError
		}
		return r
	}, s)
}
