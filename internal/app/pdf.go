package app

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var (
	mdLinkRe  = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	mdImageRe = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdEmphRe  = regexp.MustCompile(`(\*\*|~~|__)`)
)

// writeMarkdownPDF renders extracted Markdown into a plain A4 document.
// Headings are bolded, list and quote markers are kept as text, fenced code is
// set in Courier and links stay clickable. It is not a layout engine.
func writeMarkdownPDF(markdown string, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	inFence := false
	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "```") {
			inFence = !inFence
			if inFence {
				pdf.SetFont("Courier", "", 9)
			} else {
				pdf.SetFont("Helvetica", "", 11)
				pdf.Ln(2)
			}
			continue
		}
		if inFence {
			pdf.CellFormat(0, 4, tr(line), "", 1, "L", false, 0, "")
			continue
		}
		if s == "" {
			pdf.Ln(5)
			continue
		}
		if s == "---" {
			y := pdf.GetY() + 2
			w, _ := pdf.GetPageSize()
			left, _, right, _ := pdf.GetMargins()
			pdf.Line(left, y, w-right, y)
			pdf.Ln(5)
			continue
		}
		if strings.HasPrefix(s, "#") {
			i := 0
			for i < len(s) && s[i] == '#' {
				i++
			}
			text := strings.TrimSpace(s[i:])
			if text == "" {
				continue
			}
			size := 16.0
			switch {
			case i == 2:
				size = 14.0
			case i >= 3:
				size = 12.0
			}
			pdf.SetFont("Helvetica", "B", size)
			pdf.MultiCell(0, 8, tr(plainInline(text)), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
			continue
		}

		s = mdImageRe.ReplaceAllString(s, "$1")
		s = mdEmphRe.ReplaceAllString(s, "")
		parts := mdLinkRe.FindAllStringSubmatchIndex(s, -1)
		if len(parts) == 0 {
			pdf.MultiCell(0, 5, tr(unescape(s)), "", "L", false)
			continue
		}
		pos := 0
		for _, m := range parts {
			if m[0] > pos {
				pdf.Write(5, tr(unescape(s[pos:m[0]])))
			}
			text := unescape(s[m[2]:m[3]])
			url := s[m[4]:m[5]]
			if strings.HasPrefix(url, "#") {
				pdf.Write(5, tr(text))
			} else {
				pdf.WriteLinkString(5, tr(text), url)
			}
			pos = m[1]
		}
		if pos < len(s) {
			pdf.Write(5, tr(unescape(s[pos:])))
		}
		pdf.Ln(6)
	}
	if err := scanner.Err(); err != nil {
		pdf.Close()
		return err
	}
	return pdf.OutputFileAndClose(outPath)
}

func plainInline(s string) string {
	s = mdLinkRe.ReplaceAllString(s, "$1")
	return unescape(mdEmphRe.ReplaceAllString(s, ""))
}

// unescape drops the backslashes the converter puts before Markdown syntax.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte("\\*_`[]~#|", s[i+1]) >= 0 {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
