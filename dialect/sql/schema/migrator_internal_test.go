package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRevision(t *testing.T) {
	at := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	r, err := scanRevision(map[string]any{"version": "20261017093000", "description": "init", "applied_at": at})
	require.NoError(t, err)
	assert.Equal(t, &Revision{Version: "20261017093000", Description: "init", AppliedAt: at}, r)

	for _, text := range []string{"2026-10-17T09:30:00Z", at.String(), "2026-10-17 09:30:00+00:00", "2026-10-17 09:30:00"} {
		r, err := scanRevision(map[string]any{"version": "1", "description": nil, "applied_at": text})
		require.NoError(t, err, text)
		assert.True(t, at.Equal(r.AppliedAt), text)
	}

	tests := []struct {
		name string
		row  map[string]any
		msg  string
	}{
		{"version type", map[string]any{"version": int64(1), "applied_at": at}, "unexpected version 1 (int64)"},
		{"missing version", map[string]any{"applied_at": at}, "unexpected version"},
		{"description type", map[string]any{"version": "1", "description": 3.5, "applied_at": at}, "unexpected description type float64"},
		{"applied_at type", map[string]any{"version": "1", "applied_at": int64(0)}, "unexpected applied_at type int64"},
		{"applied_at null", map[string]any{"version": "1", "applied_at": nil}, "unexpected applied_at type <nil>"},
		{"applied_at text", map[string]any{"version": "1", "applied_at": "yesterday"}, `parse applied_at "yesterday"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scanRevision(tt.row)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}
