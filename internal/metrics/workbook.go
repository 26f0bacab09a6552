package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"filing-rag/internal/models"
)

var filedAtLayouts = []string{time.RFC3339, "2006-01-02", "01/02/2006", "1/2/06"}

// LoadWorkbook reads metric records from an .xlsx file. Every sheet needs a
// header row with period, metric and value columns; entity, filed_at and
// source are optional. Without an entity column the sheet name is the
// entity.
func LoadWorkbook(path string) ([]models.MetricRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var out []models.MetricRecord
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		records, err := parseSheet(sheet, rows, path)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	log.Debug().Str("file", path).Int("records", len(out)).Msg("Loaded metric workbook")
	return out, nil
}

func parseSheet(sheet string, rows [][]string, source string) ([]models.MetricRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[NormalizeName(h)] = i
	}
	for _, required := range []string{"period", "metric", "value"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("sheet %s: missing %q column", sheet, required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []models.MetricRecord
	for n, row := range rows[1:] {
		if cell(row, "metric") == "" && cell(row, "value") == "" {
			continue
		}
		period, err := strconv.Atoi(cell(row, "period"))
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: bad period %q", sheet, n+2, cell(row, "period"))
		}
		value, err := parseValue(cell(row, "value"))
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: bad value %q", sheet, n+2, cell(row, "value"))
		}
		entity := cell(row, "entity")
		if entity == "" {
			entity = sheet
		}
		src := cell(row, "source")
		if src == "" {
			src = source
		}
		out = append(out, models.MetricRecord{
			Entity:  NormalizeEntity(entity),
			Period:  period,
			Name:    NormalizeName(cell(row, "metric")),
			Value:   value,
			FiledAt: parseFiledAt(cell(row, "filed_at")),
			Source:  src,
		})
	}
	return out, nil
}

// parseValue accepts "1,234.5", "$96,995" and accounting negatives "(120)".
func parseValue(s string) (float64, error) {
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		v = -v
	}
	return v, nil
}

func parseFiledAt(s string) time.Time {
	for _, layout := range filedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
