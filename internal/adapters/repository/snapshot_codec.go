package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
)

// ErrCorruptSnapshot is returned when a stored diary cannot be decoded
var ErrCorruptSnapshot = errors.New("corrupt diary snapshot")

const snapshotVersion = 1

// diarySnapshot is the persisted form of the diary.
// Version 0 snapshots are a bare JSON array of records.
type diarySnapshot struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Records []domain.Record `json:"records"`
}

func encodeSnapshot(records []domain.Record, savedAt time.Time) ([]byte, error) {
	if records == nil {
		records = []domain.Record{}
	}
	return json.Marshal(diarySnapshot{
		Version: snapshotVersion,
		SavedAt: savedAt.UTC(),
		Records: records,
	})
}

func decodeSnapshot(data []byte) ([]domain.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []domain.Record{}, nil
	}

	if trimmed[0] == '[' {
		var records []domain.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		return records, nil
	}

	var snap diarySnapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, snap.Version)
	}
	if snap.Records == nil {
		snap.Records = []domain.Record{}
	}
	return snap.Records, nil
}
