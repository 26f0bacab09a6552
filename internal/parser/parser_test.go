package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing-rag/internal/models"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSplitSections(t *testing.T) {
	text := "PART I\nItem 1. Business\nWe make phones.\nItem 1A. Risk Factors\nMany risks.\nPART II\nItem 7. MD&A\nResults."
	sections := SplitSections(text)

	require.Len(t, sections, 3)
	assert.Equal(t, "Item 1", sections[0].Item)
	assert.Equal(t, "Business", sections[0].Title)
	assert.Equal(t, "Item 1A", sections[1].Item)
	assert.Equal(t, "Risk Factors", sections[1].Title)
	assert.Equal(t, "Item 7", sections[2].Item)
	assert.Equal(t, sections[0].End, sections[1].Start)
	assert.Less(t, sections[1].End, sections[2].Start, "PART II heading closes Item 1A")
	assert.Equal(t, len([]rune(text)), sections[2].End)
}

func TestSplitSections_IgnoresProse(t *testing.T) {
	text := "Item 7 of this report discusses, in considerable detail and across many paragraphs that run on for a long while, the results of operations for the fiscal year."
	assert.Empty(t, SplitSections(text))
}

func TestLoadFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "aapl-10k.txt", "Net sales increased.\r\n\r\n\r\n\r\nServices grew.")

	docs, err := LoadFile(path, "AAPL", models.SourceFiling)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "aapl-10k.txt", docs[0].ID)
	assert.Equal(t, "AAPL", docs[0].Entity)
	assert.Equal(t, models.SourceFiling, docs[0].Type)
	assert.Equal(t, "Net sales increased.\n\nServices grew.", docs[0].Text)
}

func TestLoadFile_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "note.md", "# Outlook\n\nDemand is *strong* in **China**.\n")

	docs, err := LoadFile(path, "AAPL", models.SourceNews)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text, "Outlook")
	assert.Contains(t, docs[0].Text, "Demand is strong in China.")
	assert.NotContains(t, docs[0].Text, "#")
	assert.NotContains(t, docs[0].Text, "*")
}

func TestLoadFile_HTML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "aapl-20240928.htm",
		`<html><head><title>10-K</title><style>p{}</style></head><body><p>Item 8. Financial Statements</p><p>Net income &amp; revenue</p><script>var x=1;</script></body></html>`)

	docs, err := LoadFile(path, "AAPL", models.SourceFiling)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text, "Item 8. Financial Statements")
	assert.Contains(t, docs[0].Text, "Net income & revenue")
	assert.NotContains(t, docs[0].Text, "var x")
	assert.NotContains(t, docs[0].Text, "10-K")
}

func TestLoadFile_NewsArray(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "AAPL-news.json", `[
  {"source":"Wire","title":"Apple beats estimates","description":"iPhone sales rose.","url":"https://example.com/a","publishedAt":"2024-05-10T14:32:12Z"},
  {"source":"Wire","title":"","description":"","url":"https://example.com/b","publishedAt":"bad"},
  {"source":"Wire","title":"Apple faces inquiry","description":"","url":"https://example.com/c","publishedAt":""}
]`)

	docs, err := LoadFile(path, "AAPL", models.SourceFiling)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "AAPL-news.json#000", docs[0].ID)
	assert.Equal(t, "Apple beats estimates — iPhone sales rose.", docs[0].Text)
	assert.Equal(t, models.SourceNews, docs[0].Type)
	assert.Equal(t, 2024, docs[0].FetchedAt.Year())
	assert.Equal(t, "AAPL-news.json#002", docs[1].ID)
	assert.Equal(t, "Apple faces inquiry", docs[1].Text)
}

func TestLoadFile_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.bin", "x")
	_, err := LoadFile(path, "AAPL", models.SourceFiling)
	assert.Error(t, err)
}

func TestLoadDir_SkipsUnsupportedAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "second")
	writeFile(t, dir, "a.txt", "first")
	writeFile(t, dir, "ignore.xml", "<xbrl/>")

	docs, err := LoadDir(dir, "MSFT", models.SourceFiling)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].ID)
	assert.Equal(t, "b.txt", docs[1].ID)
}

func TestLoadDir_NestedSameNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2023"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2024"), 0o755))
	writeFile(t, filepath.Join(dir, "2023"), "10-K.txt", "Fiscal 2023 annual report.")
	writeFile(t, filepath.Join(dir, "2024"), "10-K.txt", "Fiscal 2024 annual report.")
	writeFile(t, filepath.Join(dir, "2024"), "news.json", `[{"title":"One"},{"title":"Two"}]`)

	docs, err := LoadDir(dir, "AAPL", models.SourceFiling)
	require.NoError(t, err)
	require.Len(t, docs, 4)
	assert.Equal(t, "2023/10-K.txt", docs[0].ID)
	assert.Equal(t, "2024/10-K.txt", docs[1].ID)
	assert.Equal(t, "2024/news.json#000", docs[2].ID)
	assert.Equal(t, "2024/news.json#001", docs[3].ID)
}
