package etl

import (
	"context"
	"fmt"
	"sync"

	"github.com/BartekS5/blobmigrate/pkg/models"
)

type fakeUploader struct {
	mu        sync.Mutex
	puts      []models.SourceRecord
	positions []Position
	failOn    map[int64]error
	onPut     func(models.SourceRecord, Position)
}

func (f *fakeUploader) Put(_ context.Context, rec models.SourceRecord, pos Position) error {
	f.mu.Lock()
	f.puts = append(f.puts, rec)
	f.positions = append(f.positions, pos)
	hook := f.onPut
	err := f.failOn[rec.OrderKey]
	f.mu.Unlock()
	if hook != nil {
		hook(rec, pos)
	}
	return err
}

func (f *fakeUploader) keys() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return orderKeys(f.puts)
}

type fakeSink struct {
	lines  []string
	breaks int
}

func (s *fakeSink) EmitBytes(label string, processed, total, bytesProcessed, bytesTotal int64) (string, error) {
	line := fmt.Sprintf("%s %d/%d %d/%d", label, processed, total, bytesProcessed, bytesTotal)
	s.lines = append(s.lines, line)
	return line, nil
}

func (s *fakeSink) Break() { s.breaks++ }

type memCursorStore struct {
	cursors map[string]int64
	saves   []int64
	saveErr error
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: map[string]int64{}}
}

func (m *memCursorStore) Load(_ context.Context, entity string) (int64, bool, error) {
	c, ok := m.cursors[entity]
	return c, ok, nil
}

func (m *memCursorStore) Save(_ context.Context, entity string, cursor int64) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cursors[entity] = cursor
	m.saves = append(m.saves, cursor)
	return nil
}

func makeRecords(entity string, keys ...int64) []models.SourceRecord {
	records := make([]models.SourceRecord, len(keys))
	for i, k := range keys {
		records[i] = models.SourceRecord{
			OrderKey:   k,
			EntityType: entity,
			EntityID:   fmt.Sprintf("owner-%d", k),
			FileID:     fmt.Sprintf("file-%d", k),
			Version:    1,
			Payload:    make([]byte, 10*k),
		}
	}
	return records
}
