// Package markdown renders an HTML document body as Markdown.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// RemovedElements are dropped together with their content before rendering.
var RemovedElements = []string{
	"link", "script", "style", "noscript", "object", "embed", "iron-iconset-svg", "cr-toast",
}

var blockElements = map[string]bool{
	"div": true, "section": true, "article": true, "main": true, "header": true, "footer": true,
	"nav": true, "aside": true, "figure": true, "figcaption": true, "address": true,
	"details": true, "summary": true, "form": true, "fieldset": true, "dl": true, "dt": true, "dd": true,
}

var (
	spaceRun  = regexp.MustCompile(`\s+`)
	blankRun  = regexp.MustCompile(`\n{3,}`)
	langClass = regexp.MustCompile(`language-([\w+#-]+)`)
	escaper   = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`)
)

// Converter turns HTML into Markdown using ATX headings, fenced code and
// inline links.
type Converter struct {
	BulletMarker string
	Fence        string
	Remove       []string
}

func New() *Converter {
	return &Converter{BulletMarker: "-", Fence: "```", Remove: RemovedElements}
}

// Convert renders the document's body. The result is trimmed and NFC-normalized.
func (c *Converter) Convert(htmlStr string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	if len(c.Remove) > 0 {
		doc.Find(strings.Join(c.Remove, ", ")).Remove()
	}

	w := &writer{}
	c.processNodes(doc.Find("body").Contents(), w, 0)

	return finish(w.String()), nil
}

func finish(md string) string {
	lines := strings.Split(md, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence {
			lines[i] = strings.TrimRight(line, " \t")
		}
	}
	md = blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return norm.NFC.String(strings.TrimSpace(md))
}

// writer tracks the last written byte so collapsed text never starts a line
// with a space.
type writer struct {
	b    strings.Builder
	last byte
}

func (w *writer) WriteString(s string) {
	if s == "" {
		return
	}
	w.b.WriteString(s)
	w.last = s[len(s)-1]
}

func (w *writer) text(s string) {
	if w.last == 0 || w.last == '\n' || w.last == ' ' {
		s = strings.TrimLeft(s, " ")
	}
	w.WriteString(s)
}

func (w *writer) String() string { return w.b.String() }

func (c *Converter) processNodes(sel *goquery.Selection, w *writer, depth int) {
	sel.Each(func(_ int, s *goquery.Selection) {
		if len(s.Nodes) == 0 {
			return
		}
		node := s.Nodes[0]
		switch node.Type {
		case html.TextNode:
			c.processText(node.Data, w)
		case html.ElementNode:
			c.processElement(s, w, depth)
		}
	})
}

func (c *Converter) processText(data string, w *writer) {
	t := spaceRun.ReplaceAllString(data, " ")
	if strings.TrimSpace(t) == "" {
		if t != "" && w.last != 0 && w.last != ' ' && w.last != '\n' {
			w.WriteString(" ")
		}
		return
	}
	t = escaper.Replace(t)
	if w.last == 0 || w.last == '\n' {
		t = escapeLineStart(strings.TrimLeft(t, " "))
	}
	w.text(t)
}

// escapeLineStart keeps text that opens a line from reading as a heading,
// list item, quote or thematic break.
func escapeLineStart(t string) string {
	if t == "" {
		return t
	}
	switch t[0] {
	case '>':
		return `\` + t
	case '#', '-', '+', '=':
		n := 1
		for n < len(t) && t[n] == t[0] {
			n++
		}
		if n == len(t) || t[n] == ' ' {
			return `\` + t
		}
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n := 1
		for n < len(t) && n < 10 && t[n] >= '0' && t[n] <= '9' {
			n++
		}
		if n < len(t) && (t[n] == '.' || t[n] == ')') && (n+1 == len(t) || t[n+1] == ' ') {
			return t[:n] + `\` + t[n:]
		}
	}
	return t
}

// inline renders the selection's children to a single trimmed line.
func (c *Converter) inline(s *goquery.Selection, depth int) string {
	sub := &writer{}
	c.processNodes(s.Contents(), sub, depth)
	out := strings.TrimSpace(sub.String())
	return spaceRun.ReplaceAllString(out, " ")
}

func (c *Converter) block(w *writer) {
	if w.last != 0 {
		w.WriteString("\n\n")
	}
}

func (c *Converter) processElement(s *goquery.Selection, w *writer, depth int) {
	tag := goquery.NodeName(s)

	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := c.inline(s, depth)
		if text == "" {
			return
		}
		c.block(w)
		w.WriteString(strings.Repeat("#", int(tag[1]-'0')) + " " + text)
		w.WriteString("\n\n")

	case "p":
		c.block(w)
		c.processNodes(s.Contents(), w, depth)
		w.WriteString("\n\n")

	case "br":
		w.WriteString("\n")

	case "strong", "b":
		c.wrap(s, w, depth, "**")

	case "em", "i":
		c.wrap(s, w, depth, "_")

	case "del", "s", "strike":
		c.wrap(s, w, depth, "~~")

	case "code":
		if parent := s.Parent(); len(parent.Nodes) > 0 && goquery.NodeName(parent) == "pre" {
			return
		}
		text := s.Text()
		if text == "" {
			return
		}
		tick := "`"
		if strings.Contains(text, "`") {
			tick = "``"
		}
		w.text(tick + text + tick)

	case "pre":
		c.processPre(s, w)

	case "blockquote":
		sub := &writer{}
		c.processNodes(s.Contents(), sub, depth)
		body := strings.TrimSpace(blankRun.ReplaceAllString(sub.String(), "\n\n"))
		if body == "" {
			return
		}
		c.block(w)
		for _, line := range strings.Split(body, "\n") {
			w.WriteString(strings.TrimRight("> "+line, " ") + "\n")
		}
		w.WriteString("\n")

	case "ul", "ol":
		if depth == 0 {
			c.block(w)
		} else if w.last != '\n' {
			w.WriteString("\n")
		}
		c.processList(s, w, depth, tag == "ol")
		if depth == 0 {
			w.WriteString("\n")
		}

	case "a":
		href, _ := s.Attr("href")
		text := c.inline(s, depth)
		switch {
		case href != "" && text != "":
			title, _ := s.Attr("title")
			w.text("[" + text + "](" + href + quoteTitle(title) + ")")
		case text != "":
			w.text(text)
		}

	case "img":
		src, _ := s.Attr("src")
		if src == "" {
			return
		}
		alt, _ := s.Attr("alt")
		title, _ := s.Attr("title")
		w.text("![" + escaper.Replace(alt) + "](" + src + quoteTitle(title) + ")")

	case "hr":
		c.block(w)
		w.WriteString("---\n\n")

	case "table":
		c.processTable(s, w, depth)

	default:
		if blockElements[tag] {
			c.block(w)
			c.processNodes(s.Contents(), w, depth)
			c.block(w)
			return
		}
		c.processNodes(s.Contents(), w, depth)
	}
}

func quoteTitle(title string) string {
	if title == "" {
		return ""
	}
	return ` "` + strings.ReplaceAll(title, `"`, `\"`) + `"`
}

func (c *Converter) wrap(s *goquery.Selection, w *writer, depth int, marker string) {
	text := c.inline(s, depth)
	if text == "" {
		return
	}
	w.text(marker + text + marker)
}

func (c *Converter) processPre(s *goquery.Selection, w *writer) {
	lang := ""
	for _, el := range []*goquery.Selection{s, s.ChildrenFiltered("code").First()} {
		if class, ok := el.Attr("class"); ok {
			if m := langClass.FindStringSubmatch(class); len(m) > 1 {
				lang = m[1]
				break
			}
		}
	}
	code := strings.TrimSuffix(s.Text(), "\n")
	fence := c.Fence
	for strings.Contains(code, fence) {
		fence += "`"
	}
	c.block(w)
	w.WriteString(fence + lang + "\n")
	w.WriteString(code)
	w.WriteString("\n" + fence + "\n\n")
}

func (c *Converter) processList(s *goquery.Selection, w *writer, depth int, ordered bool) {
	counter := 1
	if start, ok := s.Attr("start"); ok {
		fmt.Sscanf(start, "%d", &counter)
	}
	indent := strings.Repeat("    ", depth)

	s.Children().Each(func(_ int, li *goquery.Selection) {
		if goquery.NodeName(li) != "li" {
			return
		}
		w.WriteString(indent)
		if ordered {
			w.WriteString(fmt.Sprintf("%d. ", counter))
			counter++
		} else {
			w.WriteString(c.BulletMarker + " ")
		}
		c.processNodes(li.Contents(), w, depth+1)
		if w.last != '\n' {
			w.WriteString("\n")
		}
	})
}

func (c *Converter) processTable(s *goquery.Selection, w *writer, depth int) {
	var rows [][]string
	header := -1
	s.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var cells []string
		tr.Children().Each(func(_ int, cell *goquery.Selection) {
			name := goquery.NodeName(cell)
			if name != "td" && name != "th" {
				return
			}
			cells = append(cells, strings.ReplaceAll(c.inline(cell, depth), "|", `\|`))
		})
		if len(cells) == 0 {
			return
		}
		if header < 0 && len(rows) == 0 && tr.ChildrenFiltered("th").Length() > 0 {
			header = 0
		}
		rows = append(rows, cells)
	})
	if len(rows) == 0 {
		return
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	c.block(w)
	writeRow := func(cells []string) {
		w.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			w.WriteString(" " + cell + " |")
		}
		w.WriteString("\n")
	}
	body := rows
	if header == 0 {
		writeRow(rows[0])
		body = rows[1:]
	} else {
		writeRow(make([]string, width))
	}
	w.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, r := range body {
		writeRow(r)
	}
	w.WriteString("\n")
}
