package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"
)

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

var summaryCSVHeader = []string{"sequence_number", "question_id", "question_text", "answer_value", "is_correct", "in_path", "answered_at"}

// ExportSummaryCSV renders one row per stored answer, in summary order.
func ExportSummaryCSV(s *Summary) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := WriteSummaryCSV(buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteSummaryCSV(out io.Writer, s *Summary) error {
	w := csv.NewWriter(out)
	if err := w.Write(summaryCSVHeader); err != nil {
		return err
	}
	if s != nil {
		for _, a := range s.UserAnswers {
			rec := []string{
				strconv.Itoa(a.SequenceNumber),
				a.QuestionID,
				a.QuestionText,
				a.AnswerValue.Canonical(),
				formatCorrect(a.IsCorrect),
				strconv.FormatBool(a.InPath),
				formatExportTime(a.AnsweredAt),
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// ExportAnswers renders the user's summary as csv (default) or json.
func (s *QuestionnaireService) ExportAnswers(ctx context.Context, userID, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		return nil, NewInvalidError("unsupported export format: " + format)
	}
	summary, err := s.GetSummary(ctx, userID)
	if err != nil {
		return nil, err
	}
	if format == "json" {
		b, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: "answers.json", ContentType: "application/json", Data: b}, nil
	}
	b, err := ExportSummaryCSV(summary)
	if err != nil {
		return nil, err
	}
	return &ExportResult{Filename: "answers.csv", ContentType: "text/csv; charset=utf-8", Data: b}, nil
}

func formatCorrect(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func formatExportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
