package xlsx

import (
	"bytes"
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, addr, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return buf.Bytes()
}

func TestReadReferencesSkipsHeader(t *testing.T) {
	data := workbook(t, [][]any{
		{"page", "paragraph", "text", "category"},
		{1, 2, "Scenes of cruelty are restricted to 16+.", "violence"},
		{3, 1, "General provisions apply.", ""},
	})

	got, err := NewReader().ReadReferences(context.Background(), data, "law.xlsx")
	if err != nil {
		t.Fatalf("ReadReferences() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %+v", got)
	}
	if got[0].Page != 1 || got[0].ParagraphIndex != 2 || got[0].CategoryHint != domain.CategoryViolence {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[1].CategoryHint != "" || got[1].Text != "General provisions apply." {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
}

func TestReadReferencesRejectsUnknownCategory(t *testing.T) {
	data := workbook(t, [][]any{{1, 1, "text", "gambling"}})
	if _, err := NewReader().ReadReferences(context.Background(), data, "law.xlsx"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReadReferencesRejectsEmptyWorkbook(t *testing.T) {
	data := workbook(t, nil)
	if _, err := NewReader().ReadReferences(context.Background(), data, "law.xlsx"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
