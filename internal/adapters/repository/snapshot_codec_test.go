package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCodec_RoundTrip(t *testing.T) {
	records := []domain.Record{{
		ID:           uuid.New(),
		Date:         time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		SugarLevel:   domain.Ptr(5.2),
		InsulinType:  domain.InsulinRapidActing,
		InsulinUnits: domain.Ptr(7),
		Food:         domain.Ptr("Oats"),
		BreadUnits:   domain.Ptr(3.0),
	}}

	blob, err := encodeSnapshot(records, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"version":1`)
	assert.Contains(t, string(blob), `"2025-06-01T08:00:00Z"`)

	decoded, err := decodeSnapshot(blob)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}

func TestSnapshotCodec_EncodesNilAsEmptyList(t *testing.T) {
	blob, err := encodeSnapshot(nil, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"records":[]`)
}

func TestSnapshotCodec_AcceptsBareArray(t *testing.T) {
	id := uuid.New()
	blob := `[{"id":"` + id.String() + `","date":"2025-06-01T08:00:00Z","sugar_level":5.5,"insulin_type":"novorapid","insulin_units":4}]`

	records, err := decodeSnapshot([]byte(blob))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, domain.InsulinRapidActing, records[0].InsulinType)
}

func TestSnapshotCodec_Empty(t *testing.T) {
	records, err := decodeSnapshot([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSnapshotCodec_Corrupt(t *testing.T) {
	for _, blob := range []string{
		"{broken",
		"[1, 2",
		`{"version":7,"records":[]}`,
		`[{"insulin_type":"humalog"}]`,
	} {
		_, err := decodeSnapshot([]byte(blob))
		assert.ErrorIs(t, err, ErrCorruptSnapshot, strings.TrimSpace(blob))
	}
}
