package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations

type mockPinger struct {
	err error
}

var _ Pinger = (*mockPinger)(nil)

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

func TestGetHealthHandler(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		queueErr error
		expected HealthRead
	}{
		{
			name:     "all healthy",
			expected: HealthRead{Status: "ok", Database: "ok", Queue: "ok"},
		},
		{
			name:     "database down",
			dbErr:    assert.AnError,
			expected: HealthRead{Status: "degraded", Database: "unavailable", Queue: "ok"},
		},
		{
			name:     "queue down",
			queueErr: assert.AnError,
			expected: HealthRead{Status: "degraded", Database: "ok", Queue: "unavailable"},
		},
		{
			name:     "both down",
			dbErr:    assert.AnError,
			queueErr: assert.AnError,
			expected: HealthRead{Status: "degraded", Database: "unavailable", Queue: "unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(&mockPinger{err: tt.dbErr}, &mockPinger{err: tt.queueErr}, createTestLogger())

			req := httptest.NewRequest(http.MethodGet, "/health/", nil)
			rec := httptest.NewRecorder()
			handler.GetHealthHandler(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)

			var read HealthRead
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
			assert.Equal(t, tt.expected, read)
		})
	}
}

func TestGetHealthHandler_WrongMethod(t *testing.T) {
	handler := NewHealthHandler(&mockPinger{}, &mockPinger{}, createTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/health/", nil)
	rec := httptest.NewRecorder()
	handler.GetHealthHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
