package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	stdhtml "html"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"

	"filing-rag/internal/models"
)

// NewsRecord is the on-disk shape of a fetched news article.
type NewsRecord struct {
	Source      string `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

var (
	xmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	blankLineRe = regexp.MustCompile(`\n{3,}`)
)

// Supported reports whether LoadFile understands the file extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".xlsx", ".md", ".markdown", ".htm", ".html", ".txt", ".json":
		return true
	}
	return false
}

// LoadFile turns one file into documents for entity. JSON files hold news
// records (one object or an array) and yield one document per record; every
// other format yields a single document.
func LoadFile(path, entity string, typ models.SourceType) ([]models.Document, error) {
	return loadFile(path, filepath.Base(path), entity, typ)
}

// loadFile is LoadFile with an explicit document id.
func loadFile(path, id, entity string, typ models.SourceType) ([]models.Document, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		return parseNews(path, id, entity)
	}

	var content string
	switch ext {
	case ".pdf":
		content, err = parsePDF(path)
	case ".docx":
		content, err = parseDOCX(path)
	case ".xlsx":
		content, err = parseXLSX(path)
	case ".md", ".markdown":
		content, err = parseMarkdown(path)
	case ".htm", ".html":
		content, err = parseHTML(path)
	case ".txt":
		content, err = parseText(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", base, err)
	}
	content = normalize(content)
	if content == "" {
		return nil, nil
	}
	return []models.Document{{
		ID:        id,
		Entity:    entity,
		Type:      typ,
		Text:      content,
		FetchedAt: stat.ModTime().UTC(),
		Source:    path,
	}}, nil
}

// LoadDir loads every supported file below dir in lexical path order.
// Document ids are slash-separated paths relative to dir, so files with the
// same name in different subdirectories stay distinct.
func LoadDir(dir, entity string, typ models.SourceType) ([]models.Document, error) {
	var docs []models.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !Supported(path) {
			log.Debug().Str("file", path).Msg("Skipping unsupported file")
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		loaded, err := loadFile(path, filepath.ToSlash(rel), entity, typ)
		if err != nil {
			return err
		}
		docs = append(docs, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func parsePDF(filePath string) (string, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var out strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		out.WriteString(pageText)
		out.WriteString("\n\n")
	}
	return out.String(), nil
}

func parseDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = xmlTagRe.ReplaceAllString(content, "")
	return stdhtml.UnescapeString(content), nil
}

func parseXLSX(filePath string) (string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, sheet := range f.Sheets {
		out.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			out.WriteString(strings.Join(cells, "\t"))
			out.WriteString("\n")
		}
		out.WriteString("\n")
	}
	return out.String(), nil
}

// parseMarkdown keeps the text of a Markdown file and drops the markup.
func parseMarkdown(filePath string) (string, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return markdownText(src)
}

func markdownText(src []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(src))
				}
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				buf.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func parseHTML(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var out strings.Builder
	skip := 0
	z := html.NewTokenizer(f)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			return out.String(), nil
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br":
				out.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6", "table":
				out.WriteString("\n")
			case "td", "th":
				out.WriteString("\t")
			}
		case html.TextToken:
			if skip == 0 {
				out.Write(z.Text())
			}
		}
	}
}

func parseText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseNews reads a news JSON file. Each record becomes a document whose
// text is the title and description joined by a dash.
func parseNews(filePath, id, entity string) ([]models.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var records []NewsRecord
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &records)
	} else {
		var rec NewsRecord
		err = json.Unmarshal(trimmed, &rec)
		records = []NewsRecord{rec}
	}
	if err != nil {
		return nil, fmt.Errorf("parse news %s: %w", filepath.Base(filePath), err)
	}

	docs := make([]models.Document, 0, len(records))
	for i, rec := range records {
		content := strings.TrimSpace(strings.Trim(strings.TrimSpace(rec.Title+" — "+rec.Description), "—"))
		if content == "" {
			continue
		}
		docID := id
		if len(records) > 1 {
			docID = fmt.Sprintf("%s#%03d", id, i)
		}
		fetched, err := time.Parse(time.RFC3339, rec.PublishedAt)
		if err != nil {
			fetched = time.Time{}
		}
		docs = append(docs, models.Document{
			ID:        docID,
			Entity:    entity,
			Type:      models.SourceNews,
			Text:      content,
			FetchedAt: fetched.UTC(),
			Source:    rec.URL,
		})
	}
	return docs, nil
}

func normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\u00a0", " ")
	content = blankLineRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
