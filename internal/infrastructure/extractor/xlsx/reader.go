// Package xlsx imports reference tables: one excerpt per row with columns
// page | paragraph | text | category (category optional).
package xlsx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

const (
	colPage = iota
	colParagraph
	colText
	colCategory
)

type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// ReadReferences reads every sheet in workbook order. A first row whose page
// cell is not a number is treated as a header.
func (r *Reader) ReadReferences(_ context.Context, data []byte, filename string) ([]domain.ReferenceParagraph, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read reference table", fmt.Errorf("open %s: %w", filename, err))
	}
	defer book.Close()

	var out []domain.ReferenceParagraph
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for i, row := range rows {
			if isBlank(row) {
				continue
			}
			if i == 0 && !isNumber(cell(row, colPage)) {
				continue
			}
			p, err := parseRow(row)
			if err != nil {
				return nil, domain.WrapError(domain.ErrInvalidInput, "read reference table", fmt.Errorf("sheet %q row %d: %w", sheet, i+1, err))
			}
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read reference table", errors.New("no rows"))
	}
	return out, nil
}

func parseRow(row []string) (domain.ReferenceParagraph, error) {
	page, err := strconv.Atoi(cell(row, colPage))
	if err != nil {
		return domain.ReferenceParagraph{}, fmt.Errorf("page: %w", err)
	}
	paragraph, err := strconv.Atoi(cell(row, colParagraph))
	if err != nil {
		return domain.ReferenceParagraph{}, fmt.Errorf("paragraph: %w", err)
	}
	p := domain.ReferenceParagraph{
		Page:           page,
		ParagraphIndex: paragraph,
		Text:           cell(row, colText),
	}
	if raw := cell(row, colCategory); raw != "" {
		category, err := domain.ParseCategory(raw)
		if err != nil {
			return domain.ReferenceParagraph{}, err
		}
		p.CategoryHint = category
	}
	return p, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
