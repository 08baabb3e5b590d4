package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/sheets/v4"
)

func TestPrepareValues(t *testing.T) {
	header := []string{"Name", "Current Balance", "Average APR", "Balance OK"}
	rows := [][]any{
		{"Marcus Saver", json.Number("1100"), json.Number("0.1"), true},
		{"Chase Bounded", nil, nil, nil},
	}

	values := prepareValues(header, rows)
	require.Len(t, values, 3)
	assert.Equal(t, []any{"Name", "Current Balance", "Average APR", "Balance OK"}, values[0])
	assert.Equal(t, []any{"Marcus Saver", 1100.0, 0.1, true}, values[1])
	assert.Equal(t, []any{"Chase Bounded", "", "", ""}, values[2])
}

func TestPrepareValues_Empty(t *testing.T) {
	values := prepareValues([]string{"Name"}, nil)
	assert.Equal(t, [][]any{{"Name"}}, values)
}

func TestFindSheet(t *testing.T) {
	ss := &sheets.Spreadsheet{Sheets: []*sheets.Sheet{
		{Properties: &sheets.SheetProperties{Title: "Other", SheetId: 1}},
		{Properties: &sheets.SheetProperties{Title: "Accounts", SheetId: 42}},
		{},
	}}

	id, ok := findSheet(ss, "Accounts")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = findSheet(ss, "Missing")
	assert.False(t, ok)
}

func TestSheetRange(t *testing.T) {
	w := &Writer{config: DefaultConfig()}
	assert.Equal(t, "'Accounts'!A1", w.sheetRange("A1"))
}

func TestNewWriter_InvalidConfig(t *testing.T) {
	_, err := NewWriter(context.Background(), Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestMockWriter(t *testing.T) {
	mock := NewMockWriter()
	ctx := context.Background()

	require.NoError(t, mock.WriteTable(ctx, []string{"a"}, [][]any{{1}}))
	assert.Equal(t, 1, mock.WriteCallCount)
	assert.Equal(t, []string{"a"}, mock.LastHeader)

	boom := errors.New("quota exceeded")
	mock.SetWriteError(boom)
	require.ErrorIs(t, mock.WriteTable(ctx, nil, nil), boom)

	calls := mock.GetWriteCalls()
	require.Len(t, calls, 2)
	assert.NoError(t, calls[0].Error)
	assert.ErrorIs(t, calls[1].Error, boom)

	mock.Reset()
	assert.Zero(t, mock.WriteCallCount)
	assert.Empty(t, mock.GetWriteCalls())
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantCode   string
		wantStatus int
		wantErr    bool
	}{
		{name: "valid", query: "?state=s1&code=abc", wantStatus: http.StatusOK, wantCode: "abc"},
		{name: "wrong state", query: "?state=other&code=abc", wantStatus: http.StatusBadRequest},
		{name: "missing code", query: "?state=s1", wantStatus: http.StatusBadRequest, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes := make(chan string, 1)
			errs := make(chan error, 1)
			rec := httptest.NewRecorder()

			callbackHandler("s1", codes, errs).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)

			select {
			case code := <-codes:
				assert.Equal(t, tt.wantCode, code)
			default:
				assert.Empty(t, tt.wantCode)
			}
			assert.Equal(t, tt.wantErr, len(errs) == 1)
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, saveToken(path, token))

	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh", loaded.RefreshToken)
	assert.True(t, token.Expiry.Equal(loaded.Expiry))

	got, err := GetOrCreateToken(context.Background(), OAuth2Config{TokenFile: path})
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)

	_, err = LoadToken(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
