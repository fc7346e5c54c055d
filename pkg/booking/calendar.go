package booking

import (
	"context"
	"fmt"
)

// Calendar is the schedule view over the cell table. It answers
// availability questions and carries the owner's maintenance override;
// booking transitions live on the Ledger.
type Calendar struct {
	store Store
}

// NewCalendar wires a Calendar.
func NewCalendar(store Store) (*Calendar, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	return &Calendar{store: store}, nil
}

// CellStatus returns the status of one cell. A cell with no stored row
// reads as Available (rows are created lazily on first claim).
func (calendar *Calendar) CellStatus(ctx context.Context, cell Cell) (CellStatus, error) {
	if _, err := SlotByID(cell.SlotID); err != nil {
		return "", err
	}
	return calendar.store.GetCellStatus(ctx, cell)
}

// AvailableSlots enumerates the catalog slots still available for a
// field on a date, in ordinal order.
func (calendar *Calendar) AvailableSlots(ctx context.Context, fieldID FieldID, date Date) ([]SlotID, error) {
	statuses, err := calendar.store.ListCellStatuses(ctx, fieldID, date)
	if err != nil {
		return nil, err
	}
	available := make([]SlotID, 0, len(slotCatalog))
	for _, slot := range slotCatalog {
		status, ok := statuses[slot.ID]
		if !ok || status == CellAvailable {
			available = append(available, slot.ID)
		}
	}
	return available, nil
}

// SetMaintenance blocks or unblocks a cell for bookings. A booked cell
// cannot be moved into maintenance; cancel the reservation first.
func (calendar *Calendar) SetMaintenance(ctx context.Context, cell Cell, maintenance bool) error {
	if _, err := SlotByID(cell.SlotID); err != nil {
		return err
	}
	return calendar.store.SetCellMaintenance(ctx, cell, maintenance)
}
