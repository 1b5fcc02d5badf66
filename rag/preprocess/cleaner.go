package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// PageBreak separates pages in extracted text.
const PageBreak = "\f"

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)

	ligatures = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl",
		"—", "-", "–", "-",
		"·", ".", "•", "-",
	)
)

// NoisePatterns are boilerplate markers of scraped web pages; lines that
// contain one are removed by RemoveWebNoise.
var NoisePatterns = []string{
	"相关链接", "你可能还喜欢", "热门文章", "版权所有",
	"All rights reserved", "Accept cookies", "Privacy Policy", "Related articles",
}

// CleanBasic removes control characters other than tabs and line breaks,
// fixes common ligature and OCR artifacts and collapses whitespace.
// CRLF and lone carriage returns become newlines.
func CleanBasic(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	b := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t':
			return r
		case '\r':
			return '\n'
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	b = ligatures.Replace(b)
	b = reSpaces.ReplaceAllString(b, " ")
	b = reNewlines.ReplaceAllString(b, "\n\n")

	return strings.TrimSpace(b)
}

// SplitPages splits text on form feeds. Text without one is a single page.
func SplitPages(text string) []string {
	return strings.Split(text, PageBreak)
}

// HTMLToText extracts headings, paragraphs, list items, code and tables
// as markdown-like text.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script,style,nav,footer").Remove()

	var out []string
	doc.Find("h1,h2,h3,h4,p,li,pre,table").Each(func(i int, s *goquery.Selection) {
		body := strings.TrimSpace(s.Text())
		if body == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+body)
		case "h2":
			out = append(out, "## "+body)
		case "h3", "h4":
			out = append(out, "### "+body)
		case "p":
			out = append(out, body)
		case "li":
			out = append(out, "- "+body)
		case "pre":
			out = append(out, "```\n"+body+"\n```")
		case "table":
			out = append(out, parseTable(s))
		}
	})
	return strings.Join(out, "\n\n"), nil
}

func parseTable(sel *goquery.Selection) string {
	var rows []string
	sel.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(j int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, "| "+strings.Join(cols, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}

// RemoveDuplicateParagraphs dedupe by exact paragraph text
func RemoveDuplicateParagraphs(text string) string {
	parts := strings.Split(text, "\n\n")
	seen := map[string]struct{}{}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

// Preprocess cleans one page of text.
func Preprocess(raw string) string {
	t := CleanBasic(raw)
	t = RemoveWebNoise(t)
	t = RemoveDuplicateParagraphs(t)
	return t
}

// RemoveWebNoise drops lines containing any of NoisePatterns.
func RemoveWebNoise(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		skip := false
		for _, p := range NoisePatterns {
			if strings.Contains(l, p) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
