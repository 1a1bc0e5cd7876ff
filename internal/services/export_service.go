package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/storage"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetSummary   = "Summary"
	sheetAttempts  = "Attempts"
	sheetQuestions = "Questions"
)

type exportService struct {
	stats   StatisticsService
	storage storage.ReportStorage
	logger  *slog.Logger
	now     func() time.Time
}

// NewExportService builds workbooks from exam results. reports may be nil, which disables archiving.
func NewExportService(stats StatisticsService, reports storage.ReportStorage, logger *slog.Logger) ExportService {
	return &exportService{
		stats:   stats,
		storage: reports,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *exportService) ExportResults(ctx context.Context, examID uint) (*ReportFile, error) {
	results, err := s.stats.GetExamResults(ctx, examID)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now().UTC()
	data, err := buildResultsWorkbook(results, generatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to build results workbook: %w", err)
	}

	s.logger.Info("Results exported",
		"exam_id", examID,
		"attempts", len(results.Attempts),
		"bytes", len(data))

	return &ReportFile{
		Name:        fmt.Sprintf("exam-%d-results-%s.xlsx", examID, generatedAt.Format("20060102-150405")),
		ContentType: xlsxContentType,
		Data:        data,
		GeneratedAt: generatedAt,
	}, nil
}

func (s *exportService) ArchiveResults(ctx context.Context, examID uint) (string, error) {
	if s.storage == nil {
		return "", ErrReportStorageDisabled
	}

	report, err := s.ExportResults(ctx, examID)
	if err != nil {
		return "", err
	}

	url, err := s.storage.Upload(ctx, report.Name, bytes.NewReader(report.Data), int64(len(report.Data)), report.ContentType)
	if err != nil {
		return "", fmt.Errorf("failed to archive results: %w", err)
	}

	s.logger.Info("Results archived", "exam_id", examID, "url", url)
	return url, nil
}

func buildResultsWorkbook(results *ExamResultsResponse, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetAttempts, sheetQuestions} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	if err := writeRows(f, sheetSummary, summaryRows(results, generatedAt)); err != nil {
		return nil, err
	}
	if err := writeRows(f, sheetAttempts, attemptRows(results.Attempts)); err != nil {
		return nil, err
	}
	if err := writeRows(f, sheetQuestions, questionRows(results.QuestionAnalytics)); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func summaryRows(results *ExamResultsResponse, generatedAt time.Time) [][]interface{} {
	exam, stats := results.Exam, results.Statistics
	rows := [][]interface{}{
		{"Exam", exam.Title},
		{"Exam ID", exam.ID},
		{"Pass mark", exam.PassMark},
		{"Max score", exam.MaxScore},
		{"Generated at", generatedAt.Format(time.RFC3339)},
		{},
		{"Attempts", stats.AttemptCount},
		{"Passed", stats.PassedTotal},
		{"Pass rate", cellValue(stats.PassRate)},
		{"Average score", cellValue(stats.AverageScore)},
		{"Highest score", cellValue(stats.HighestScore)},
		{"Lowest score", cellValue(stats.LowestScore)},
		{"Average duration (s)", cellValue(stats.AverageDuration)},
	}
	if mm := stats.MostMissed; mm != nil {
		text := ""
		if mm.QuestionText != nil {
			text = *mm.QuestionText
		}
		rows = append(rows, []interface{}{"Most missed", text, fmt.Sprintf("%d/%d", mm.Missed, mm.Total)})
	}
	return rows
}

func attemptRows(attempts []*models.AdminAttemptPayload) [][]interface{} {
	rows := [][]interface{}{{
		"Attempt ID", "Attempt #", "User", "Email", "Status",
		"Score", "Max score", "Percentage", "Passed", "Started", "Ended", "Duration (s)",
	}}
	for _, a := range attempts {
		passed := ""
		if a.Passed != nil {
			passed = fmt.Sprintf("%t", *a.Passed)
		}
		email := ""
		if a.User.Email != nil {
			email = *a.User.Email
		}
		rows = append(rows, []interface{}{
			a.AttemptID, a.AttemptNumber, a.User.Name, email, string(a.Status),
			a.Score, a.MaxScore, cellValue(a.Percentage), passed,
			stringValue(a.StartTime), stringValue(a.EndTime), intValue(a.DurationSeconds),
		})
	}
	return rows
}

func questionRows(analytics []QuestionAnalytics) [][]interface{} {
	rows := [][]interface{}{{"Question ID", "Question", "Answers", "Correct", "Incorrect"}}
	for _, q := range analytics {
		rows = append(rows, []interface{}{
			q.QuestionID, stringValue(q.QuestionText), q.Total, q.Correct, q.Incorrect,
		})
	}
	return rows
}

// cellValue leaves the cell blank for missing aggregates
func cellValue(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func intValue(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
