package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Section is a titled span of a filing, e.g. "Item 1A" / "Risk Factors".
// Start and End are rune offsets.
type Section struct {
	Item  string `json:"item"`
	Title string `json:"title"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

const maxHeadingRunes = 120

var (
	itemHeadingRe = regexp.MustCompile(`(?i)^item\s+(\d{1,2}[a-c]?)\s*[\.:\-–—]?\s*(.*)$`)
	partHeadingRe = regexp.MustCompile(`(?i)^part\s+(i{1,3}|iv)\b`)
)

// SplitSections scans text line by line and returns the "Item N" sections of
// a 10-K/10-Q style filing in document order. Text before the first heading
// is not part of any section.
func SplitSections(text string) []Section {
	var (
		result []Section
		offset int
	)
	closeCurrent := func(at int) {
		if len(result) > 0 && result[len(result)-1].End < 0 {
			result[len(result)-1].End = at
		}
	}
	for _, line := range strings.Split(text, "\n") {
		lineRunes := utf8.RuneCountInString(line)
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && utf8.RuneCountInString(trimmed) <= maxHeadingRunes {
			if m := itemHeadingRe.FindStringSubmatch(trimmed); m != nil {
				closeCurrent(offset)
				result = append(result, Section{
					Item:  "Item " + strings.ToUpper(m[1]),
					Title: strings.Trim(strings.TrimSpace(m[2]), "\"."),
					Start: offset,
					End:   -1,
				})
			} else if partHeadingRe.MatchString(trimmed) {
				closeCurrent(offset)
			}
		}
		offset += lineRunes + 1
	}
	closeCurrent(utf8.RuneCountInString(text))
	return result
}

// sectionAt returns the label of the section containing rune offset pos.
func sectionAt(sections []Section, pos int) string {
	for i := len(sections) - 1; i >= 0; i-- {
		s := sections[i]
		if s.Start <= pos && pos < s.End {
			if s.Title == "" {
				return s.Item
			}
			return s.Item + " " + s.Title
		}
	}
	return ""
}
