package slides

import (
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/slidegen/internal/interfaces"
)

// Slide page geometry in millimetres (A4 landscape)
const (
	pageWidth     = 297.0
	pageHeight    = 210.0
	margin        = 10.0
	contentWidth  = pageWidth - 2*margin
	maxImageRatio = 0.6 // Largest share of the page height a single image may take
	baseFont      = "Arial"
	baseSize      = 12.0
)

// pdfRenderer walks a goldmark AST and draws it onto one slide
type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	logger    arbor.ILogger
	translate func(string) string
	font      string
	size      float64
	bold      bool
	italic    bool
	inList    bool
	listLevel int

	// images maps slot name to the processed image file
	images      map[string]string
	placed      []interfaces.Replacement
	imageErrors []string
}

func newRenderer(source []byte, images map[string]string, logger arbor.ILogger) *pdfRenderer {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()
	pdf.SetFont(baseFont, "", baseSize)

	return &pdfRenderer{
		pdf:       pdf,
		source:    source,
		logger:    logger,
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
		font:      baseFont,
		size:      baseSize,
		images:    images,
	}
}

func (r *pdfRenderer) render(node ast.Node) error {
	if err := ast.Walk(node, r.walk); err != nil {
		return err
	}
	return r.pdf.Error()
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading:
		return r.handleHeading(n.(*ast.Heading), entering)
	case ast.KindParagraph:
		return r.handleParagraph(entering)
	case ast.KindText:
		return r.handleText(n.(*ast.Text), entering)
	case ast.KindEmphasis:
		return r.handleEmphasis(n.(*ast.Emphasis), entering)
	case ast.KindCodeSpan:
		return r.handleCodeSpan(n.(*ast.CodeSpan), entering)
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			r.renderCodeBlock(n.Lines())
		}
		return ast.WalkSkipChildren, nil
	case ast.KindImage:
		return r.handleImage(n.(*ast.Image), entering)
	case ast.KindList:
		return r.handleList(entering)
	case ast.KindListItem:
		return r.handleListItem(entering)
	case ast.KindThematicBreak:
		if entering {
			r.pdf.Ln(2)
			r.pdf.Line(margin, r.pdf.GetY(), pageWidth-margin, r.pdf.GetY())
			r.pdf.Ln(2)
		}
	case extast.KindTable:
		return r.handleTable(n.(*extast.Table), entering)
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleHeading(n *ast.Heading, entering bool) (ast.WalkStatus, error) {
	if entering {
		size := 14.0
		switch n.Level {
		case 1:
			size = 28
		case 2:
			size = 20
		case 3:
			size = 16
		}
		r.pdf.SetFont(r.font, "B", size)
	} else {
		r.pdf.Ln(12)
		r.updateFont()
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleParagraph(entering bool) (ast.WalkStatus, error) {
	if !entering {
		r.pdf.Ln(8)
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleText(n *ast.Text, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.pdf.Write(6, r.translate(string(n.Segment.Value(r.source))))
		if n.SoftLineBreak() {
			r.pdf.Write(6, " ")
		}
		if n.HardLineBreak() {
			r.pdf.Ln(6)
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleEmphasis(n *ast.Emphasis, entering bool) (ast.WalkStatus, error) {
	if n.Level == 2 {
		r.bold = entering
	} else {
		r.italic = entering
	}
	r.updateFont()
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleCodeSpan(n *ast.CodeSpan, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.pdf.SetFont("Courier", "", r.size)
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if textNode, ok := c.(*ast.Text); ok {
				r.pdf.Write(6, r.translate(string(textNode.Segment.Value(r.source))))
			}
		}
		r.updateFont()
	}
	return ast.WalkSkipChildren, nil
}

func (r *pdfRenderer) renderCodeBlock(lines *text.Segments) {
	r.pdf.Ln(2)
	r.pdf.SetFont("Courier", "", 10)
	r.pdf.SetFillColor(245, 245, 245)

	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		txt := strings.TrimRight(string(line.Value(r.source)), "\n")
		r.pdf.MultiCell(0, 5, r.translate(txt), "", "L", true)
	}

	r.pdf.SetFillColor(255, 255, 255)
	r.updateFont()
	r.pdf.Ln(2)
}

// handleImage places the processed image for slot:<name> destinations.
// Other images and unfilled slots are drawn as a labelled frame.
func (r *pdfRenderer) handleImage(n *ast.Image, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	slot, ok := slotName(string(n.Destination))
	if !ok {
		r.placeholder(string(n.Destination))
		return ast.WalkSkipChildren, nil
	}

	path := r.images[slot]
	if path == "" {
		r.placeholder(slot)
		return ast.WalkSkipChildren, nil
	}

	options := fpdf.ImageOptions{ReadDpi: true}
	info := r.pdf.RegisterImageOptions(path, options)
	if !r.pdf.Ok() || info == nil {
		err := r.pdf.Error()
		r.pdf.ClearError()
		r.logger.Warn().Err(err).Str("slot", slot).Str("path", path).Msg("Failed to place image")
		r.imageErrors = append(r.imageErrors, fmt.Sprintf("image %s: %v", slot, err))
		r.placeholder(slot)
		return ast.WalkSkipChildren, nil
	}

	w, h := fitBox(info.Width(), info.Height(), contentWidth, (pageHeight-2*margin)*maxImageRatio)
	r.pdf.ImageOptions(path, r.pdf.GetX(), r.pdf.GetY(), w, h, true, options, 0, "")
	r.placed = append(r.placed, interfaces.Replacement{Target: slot, Value: path})
	return ast.WalkSkipChildren, nil
}

func (r *pdfRenderer) placeholder(label string) {
	x, y := r.pdf.GetX(), r.pdf.GetY()
	w, h := contentWidth/3, 40.0
	r.pdf.SetDrawColor(180, 180, 180)
	r.pdf.Rect(x, y, w, h, "D")
	r.pdf.SetXY(x, y+h/2-3)
	r.pdf.SetFont(r.font, "I", 10)
	r.pdf.CellFormat(w, 6, r.translate(label), "", 0, "C", false, 0, "")
	r.pdf.SetDrawColor(0, 0, 0)
	r.updateFont()
	r.pdf.SetXY(margin, y+h+2)
}

func (r *pdfRenderer) handleList(entering bool) (ast.WalkStatus, error) {
	if entering {
		r.inList = true
		r.listLevel++
	} else {
		r.listLevel--
		if r.listLevel == 0 {
			r.inList = false
			r.pdf.Ln(2)
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleListItem(entering bool) (ast.WalkStatus, error) {
	if entering {
		r.pdf.Ln(6)
		indent := float64(r.listLevel) * 6.0
		r.pdf.SetX(margin + indent)
		r.pdf.Write(6, "- ")
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) handleTable(n *extast.Table, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	var rows [][]string
	var findRows func(node ast.Node)
	findRows = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			switch child.(type) {
			case *extast.TableHeader:
				rows = append(rows, r.extractRow(child))
			case *extast.TableRow:
				rows = append(rows, r.extractRow(child))
			}
		}
	}
	findRows(n)

	r.renderTable(rows)
	return ast.WalkSkipChildren, nil
}

func (r *pdfRenderer) extractRow(n ast.Node) []string {
	var row []string
	for cell := n.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if _, ok := cell.(*extast.TableCell); ok {
			row = append(row, r.translate(cellText(cell, r.source)))
		}
	}
	return row
}

func (r *pdfRenderer) renderTable(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}
	numCols := len(rows[0])
	colWidth := contentWidth / float64(numCols)
	lineHeight := 6.0

	r.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			r.pdf.SetFont(r.font, "B", 10)
			r.pdf.SetFillColor(230, 230, 230)
		} else {
			r.pdf.SetFont(r.font, "", 10)
			r.pdf.SetFillColor(255, 255, 255)
		}
		for j := 0; j < numCols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			r.pdf.CellFormat(colWidth, lineHeight, cell, "1", 0, "L", true, 0, "")
		}
		r.pdf.Ln(lineHeight)
	}

	r.pdf.SetFillColor(255, 255, 255)
	r.pdf.Ln(3)
	r.updateFont()
}

// cellText concatenates the text segments below node
func cellText(node ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// fitBox scales w x h to fit inside maxW x maxH keeping the aspect ratio
func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}
