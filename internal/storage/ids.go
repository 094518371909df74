package storage

import (
	"fmt"
	"strconv"

	"github.com/tuannm99/pagedb/internal/record"
)

// CreatePageID renders n as a zero-padded 5-digit page id.
func CreatePageID(n int) (string, error) {
	id := fmt.Sprintf("%05d", n)
	if len(id) > PageIDSize {
		return "", fmt.Errorf("%w: %d", ErrPageIDOverflow, n)
	}
	return id, nil
}

// CreateRecordID concatenates a page id with a zero-padded slot index.
func CreateRecordID(pageID string, slot int) (string, error) {
	if len(pageID) != PageIDSize {
		return "", ErrBadPageID
	}
	suffix := fmt.Sprintf("%05d", slot)
	if len(suffix) > PageIDSize {
		return "", fmt.Errorf("%w: slot %d", ErrPageIDOverflow, slot)
	}
	return pageID + suffix, nil
}

// ParsePageID extracts the owning page id from a record id.
func ParsePageID(recordID string) (string, error) {
	if len(recordID) != record.IDSize {
		return "", record.ErrBadRecordID
	}
	return recordID[:PageIDSize], nil
}

// ParseSlotIndex extracts the slot index from a record id.
func ParseSlotIndex(recordID string) (int, error) {
	if len(recordID) != record.IDSize {
		return 0, record.ErrBadRecordID
	}
	slot, err := strconv.Atoi(recordID[PageIDSize:])
	if err != nil {
		return 0, fmt.Errorf("parse slot index: %w", err)
	}
	return slot, nil
}
