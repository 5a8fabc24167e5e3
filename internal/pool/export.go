package pool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"qbank/internal/question"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

var optionColumns = []string{"option_a", "option_b", "option_c", "option_d", "option_e", "option_f"}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportReport struct {
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Errors      []ImportRowError `json:"errors"`
}

type yamlExport struct {
	Pool      string                      `yaml:"pool"`
	Questions []question.ApprovedQuestion `yaml:"questions"`
}

func (s *Service) ExportExcel(ctx context.Context, poolID int64) ([]byte, error) {
	items, err := s.ListQuestions(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return questionsToExcel(items)
}

func questionsToExcel(items []Question) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	headers := append([]string{"no", "stem"}, optionColumns...)
	headers = append(headers, "correct_answer", "explanation", "difficulty")
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		values := []any{it.Position, it.Stem}
		for j := range optionColumns {
			text := ""
			if j < len(it.Options) {
				text = it.Options[j].Text
			}
			values = append(values, text)
		}
		values = append(values, it.CorrectAnswer, it.Explanation, string(it.Difficulty))
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 6)
	_ = f.SetColWidth(sheet, "B", "B", 60)
	_ = f.SetColWidth(sheet, "C", "H", 28)
	_ = f.SetColWidth(sheet, "I", "K", 18)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) ExportYAML(ctx context.Context, poolID int64) ([]byte, error) {
	p, err := s.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	items, err := s.ListQuestions(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return questionsToYAML(p.Name, items)
}

func questionsToYAML(name string, items []Question) ([]byte, error) {
	doc := yamlExport{Pool: name, Questions: make([]question.ApprovedQuestion, 0, len(items))}
	for _, it := range items {
		doc.Questions = append(doc.Questions, question.ApprovedQuestion{
			Stem:          it.Stem,
			Options:       it.Options,
			CorrectAnswer: it.CorrectAnswer,
			Explanation:   it.Explanation,
			Difficulty:    it.Difficulty,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportExcel reads a sheet in the export layout and stores the valid rows
// as one batch. Invalid rows are reported and skipped.
func (s *Service) ImportExcel(ctx context.Context, poolID int64, r io.Reader) (*ImportReport, error) {
	items, report, err := parseQuestionSheet(r)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return report, nil
	}
	if err := s.SaveBatch(ctx, poolID, items); err != nil {
		return nil, err
	}
	report.SuccessRows = len(items)
	return report, nil
}

func parseQuestionSheet(r io.Reader) ([]question.ApprovedQuestion, *ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open excel: %v", ErrInvalidInput, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%w: excel sheet is empty", ErrInvalidInput)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("%w: no data rows found", ErrInvalidInput)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"stem", "option_a", "option_b", "correct_answer"} {
		if _, ok := header[col]; !ok {
			return nil, nil, fmt.Errorf("%w: missing required column: %s", ErrInvalidInput, col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	items := make([]question.ApprovedQuestion, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		report.TotalRows++

		q := question.ApprovedQuestion{
			Stem:          get("stem"),
			CorrectAnswer: strings.ToUpper(get("correct_answer")),
			Explanation:   get("explanation"),
		}
		for j, col := range optionColumns {
			text := get(col)
			if text == "" {
				break
			}
			q.Options = append(q.Options, question.Option{Label: string(rune('A' + j)), Text: text})
		}
		d, ok := question.ParseDifficulty(get("difficulty"))
		if !ok {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: i + 1, Error: "unknown difficulty"})
			continue
		}
		q.Difficulty = d
		if err := question.ValidateApproved(q); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: i + 1, Error: strings.TrimPrefix(err.Error(), question.ErrInvalidCandidate.Error()+": ")})
			continue
		}
		items = append(items, q)
	}
	if report.TotalRows == 0 {
		return nil, nil, fmt.Errorf("%w: no data rows found", ErrInvalidInput)
	}
	return items, report, nil
}
