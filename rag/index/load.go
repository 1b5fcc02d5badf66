package index

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/rag/document"
	"github.com/sweetpotato0/agentic-rag/rag/preprocess"
)

var supportedExts = map[string]struct{}{
	".txt":      {},
	".md":       {},
	".markdown": {},
	".html":     {},
	".htm":      {},
}

// Supported reports whether name has an extension the index can ingest.
func Supported(name string) bool {
	_, ok := supportedExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

func isHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// documentsFromFile cleans a file and splits it into one document per page.
// Form feeds separate pages; a single-page file has no position.
func documentsFromFile(f File) ([]document.Document, error) {
	if !Supported(f.Name) {
		return nil, fmt.Errorf("unsupported file type %q: %w", filepath.Ext(f.Name), errorskg.ErrInvalidInput)
	}
	if !utf8.Valid(f.Content) {
		return nil, fmt.Errorf("%s is not valid UTF-8: %w", f.Name, errorskg.ErrInvalidInput)
	}

	text := string(f.Content)
	if isHTML(f.Name) {
		var err error
		text, err = preprocess.HTMLToText(text)
		if err != nil {
			return nil, fmt.Errorf("extract html: %w", err)
		}
	}

	pages := preprocess.SplitPages(text)
	ext := strings.ToLower(filepath.Ext(f.Name))
	var docs []document.Document
	for i, page := range pages {
		content := page
		if !isMarkdown(f.Name) {
			content = preprocess.Preprocess(page)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		position := ""
		if len(pages) > 1 {
			position = strconv.Itoa(i + 1)
		}
		doc := document.Document{
			Source:   f.Name,
			Position: position,
			Content:  content,
			Metadata: map[string]string{document.MetaExt: ext},
		}
		document.EnsureDocumentID(&doc)
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadDir reads every supported file under dir. Names are slash separated
// and relative to dir, sorted for a stable ingestion order.
func LoadDir(dir string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, File{Name: filepath.ToSlash(rel), Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
