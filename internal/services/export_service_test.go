package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

type memoryReportStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func (s *memoryReportStorage) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", errors.New("size mismatch")
	}
	s.objects[name] = data
	s.types[name] = contentType
	return s.GetURL(name), nil
}

func (s *memoryReportStorage) GetURL(name string) string {
	return "/reports/" + name
}

func TestExportResultsWorkbook(t *testing.T) {
	env := newTestEnv(t)
	exam, _ := seedTwoAttempts(t, env)

	report, err := env.export.ExportResults(env.ctx, exam.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if report.ContentType != xlsxContentType {
		t.Errorf("content type = %s", report.ContentType)
	}
	if !strings.HasPrefix(report.Name, "exam-") || !strings.HasSuffix(report.Name, ".xlsx") {
		t.Errorf("name = %s", report.Name)
	}

	f, err := excelize.OpenReader(bytes.NewReader(report.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != sheetSummary || sheets[1] != sheetAttempts || sheets[2] != sheetQuestions {
		t.Fatalf("sheets = %v", sheets)
	}

	attempts, err := f.GetRows(sheetAttempts)
	if err != nil {
		t.Fatalf("attempt rows: %v", err)
	}
	if len(attempts) != 3 {
		t.Errorf("attempt rows = %d, want header plus 2", len(attempts))
	}
	if attempts[0][0] != "Attempt ID" {
		t.Errorf("attempt header = %v", attempts[0])
	}

	questions, err := f.GetRows(sheetQuestions)
	if err != nil {
		t.Fatalf("question rows: %v", err)
	}
	if len(questions) != 4 {
		t.Errorf("question rows = %d, want header plus 3", len(questions))
	}

	title, err := f.GetCellValue(sheetSummary, "B1")
	if err != nil || title != exam.Title {
		t.Errorf("summary title = %q (%v), want %q", title, err, exam.Title)
	}
}

func TestArchiveResults(t *testing.T) {
	env := newTestEnv(t)
	exam := env.seedExam(t)

	if _, err := env.export.ArchiveResults(env.ctx, exam.ID); !errors.Is(err, ErrReportStorageDisabled) {
		t.Fatalf("err = %v, want ErrReportStorageDisabled", err)
	}

	reports := &memoryReportStorage{objects: map[string][]byte{}, types: map[string]string{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exporter := NewExportService(env.stats, reports, logger)

	url, err := exporter.ArchiveResults(env.ctx, exam.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(url, "/reports/exam-") {
		t.Errorf("url = %s", url)
	}
	if len(reports.objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(reports.objects))
	}
	for name, ct := range reports.types {
		if ct != xlsxContentType {
			t.Errorf("%s content type = %s", name, ct)
		}
	}

	if _, err := exporter.ArchiveResults(env.ctx, exam.ID+1000); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("err = %v, want ErrExamNotFound", err)
	}
}
