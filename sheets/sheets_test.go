package sheets

import (
	"birthdaybot/models"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type memoryStore struct {
	records []models.BirthdayRecord
	fail    bool
}

func (s *memoryStore) Upsert(_ context.Context, record models.BirthdayRecord) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.records = append(s.records, record)
	return nil
}

func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestWriteThenRead(t *testing.T) {
	birthday := time.Date(1990, 12, 24, 0, 0, 0, 0, time.UTC)
	records := []models.BirthdayRecord{
		{UserID: 123456789012345678, DisplayName: "john_doe", FirstName: "John", LastName: "Doe", Birthday: &birthday, NotifyPreference: true},
		{UserID: 2, DisplayName: "lurker"},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, records))

	result, err := Read(&buf)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Records, 2)

	got := result.Records[0]
	assert.Equal(t, int64(123456789012345678), got.UserID)
	assert.Equal(t, "John", got.FirstName)
	require.NotNil(t, got.Birthday)
	assert.True(t, got.Birthday.Equal(birthday))
	assert.True(t, got.NotifyPreference)

	assert.Nil(t, result.Records[1].Birthday)
	assert.False(t, result.Records[1].NotifyPreference)
}

func TestReadSkipsInvalidRows(t *testing.T) {
	buf := workbook(t, [][]interface{}{
		{"user_id", "display_name", "firstname", "lastname", "birthday", "notify"},
		{"1", "ok", "", "", "01.02.1990", "yes"},
		{"abc", "bad id"},
		{},
		{"3", "bad date", "", "", "1990-02-01"},
		{"4", "bad notify", "", "", "", "maybe"},
	})

	result, err := Read(buf)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(1), result.Records[0].UserID)
	assert.Equal(t, 3, result.Skipped)
	assert.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Row 3")
}

func TestImport(t *testing.T) {
	buf := workbook(t, [][]interface{}{
		{"1", "a", "", "", "01.02.1990"},
		{"2", "b"},
	})

	store := &memoryStore{}
	result, err := Import(context.Background(), buf, store)
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Len(t, store.records, 2)
}

func TestImportStopsOnStorageError(t *testing.T) {
	buf := workbook(t, [][]interface{}{{"1", "a"}})

	_, err := Import(context.Background(), buf, &memoryStore{fail: true})
	assert.Error(t, err)
}
