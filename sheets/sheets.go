// Package sheets moves birthday records in and out of xlsx workbooks.
package sheets

import (
	"birthdaybot/dates"
	"birthdaybot/models"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// SheetName is the sheet written by Write.
const SheetName = "Birthdays"

// Header is the first row of every exported sheet. Import expects the same
// column order.
var Header = []string{"user_id", "display_name", "firstname", "lastname", "birthday", "notify"}

const (
	colUserID = iota
	colDisplayName
	colFirstName
	colLastName
	colBirthday
	colNotify
)

// Result holds the outcome of reading a workbook.
type Result struct {
	Records []models.BirthdayRecord
	Skipped int
	Errors  []string
}

// Upserter stores imported records.
type Upserter interface {
	Upsert(ctx context.Context, record models.BirthdayRecord) error
}

// Write exports records as a single sheet workbook.
func Write(w io.Writer, records []models.BirthdayRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		birthday := ""
		if record.HasBirthday() {
			birthday = record.Birthday.Format(dates.FullLayout)
		}
		row := []interface{}{
			strconv.FormatInt(record.UserID, 10),
			record.DisplayName,
			record.FirstName,
			record.LastName,
			birthday,
			formatBool(record.NotifyPreference),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "F", 20); err != nil {
		return err
	}
	return f.Write(w)
}

// Read parses the first sheet of a workbook. Rows that cannot be parsed are
// skipped and reported in Result.Errors.
func Read(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	result := &Result{}
	for i, row := range rows {
		if i == 0 && isHeader(row) {
			continue
		}
		if blank(row) {
			continue
		}

		record, err := parseRow(row)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
			continue
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}

// Import reads a workbook and upserts every valid record. It stops at the
// first storage error.
func Import(ctx context.Context, r io.Reader, store Upserter) (*Result, error) {
	result, err := Read(r)
	if err != nil {
		return nil, err
	}
	for _, record := range result.Records {
		if err := store.Upsert(ctx, record); err != nil {
			return result, fmt.Errorf("failed to import %v: %w", record.UserID, err)
		}
	}
	return result, nil
}

func cell(row []string, col int) string {
	if col < len(row) {
		return strings.TrimSpace(row[col])
	}
	return ""
}

func isHeader(row []string) bool {
	return strings.EqualFold(cell(row, colUserID), Header[colUserID])
}

func blank(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string) (models.BirthdayRecord, error) {
	id, err := strconv.ParseInt(cell(row, colUserID), 10, 64)
	if err != nil {
		return models.BirthdayRecord{}, fmt.Errorf("invalid user id %q", cell(row, colUserID))
	}

	record := models.BirthdayRecord{
		UserID:      id,
		DisplayName: cell(row, colDisplayName),
		FirstName:   cell(row, colFirstName),
		LastName:    cell(row, colLastName),
	}

	if value := cell(row, colBirthday); value != "" {
		birthday, err := time.Parse(dates.FullLayout, value)
		if err != nil {
			return models.BirthdayRecord{}, fmt.Errorf("invalid birthday %q, expected %v", value, dates.InputFormat)
		}
		record.Birthday = &birthday
	}

	notify, err := parseBool(cell(row, colNotify))
	if err != nil {
		return models.BirthdayRecord{}, err
	}
	record.NotifyPreference = notify

	return record, nil
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "", "no", "false", "0":
		return false, nil
	case "yes", "true", "1":
		return true, nil
	default:
		return false, fmt.Errorf("invalid notify value %q", value)
	}
}
