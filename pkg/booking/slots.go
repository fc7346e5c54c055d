package booking

import (
	"fmt"
	"time"
)

// Slot is one fixed interval from the closed catalog. Slots are not
// created per booking; the catalog below spans a full playing day.
type Slot struct {
	ID    SlotID
	Start string
	End   string
}

var slotCatalog = []Slot{
	{ID: 1, Start: "05:45", End: "07:15"},
	{ID: 2, Start: "07:15", End: "08:45"},
	{ID: 3, Start: "08:45", End: "10:15"},
	{ID: 4, Start: "10:15", End: "11:45"},
	{ID: 5, Start: "11:45", End: "13:15"},
	{ID: 6, Start: "13:15", End: "14:45"},
	{ID: 7, Start: "14:45", End: "16:15"},
	{ID: 8, Start: "16:15", End: "17:45"},
	{ID: 9, Start: "17:45", End: "19:15"},
	{ID: 10, Start: "19:15", End: "20:45"},
	{ID: 11, Start: "20:45", End: "22:15"},
}

// Slots returns the full catalog in ordinal order.
func Slots() []Slot {
	catalog := make([]Slot, len(slotCatalog))
	copy(catalog, slotCatalog)
	return catalog
}

// SlotByID looks up a catalog slot.
func SlotByID(id SlotID) (Slot, error) {
	if id < 1 || int(id) > len(slotCatalog) {
		return Slot{}, fmt.Errorf("%w: slot %d outside catalog", ErrInvalidSlotID, id)
	}
	return slotCatalog[id-1], nil
}

// Minutes returns the slot length.
func (slot Slot) Minutes() int {
	start := clockMinutes(slot.Start)
	end := clockMinutes(slot.End)
	return end - start
}

// StartOn returns the slot's starting instant on a given date, UTC.
func (slot Slot) StartOn(date Date) time.Time {
	parsed, err := time.Parse(dateLayout+" 15:04", date.String()+" "+slot.Start)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func clockMinutes(clock string) int {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return 0
	}
	return parsed.Hour()*60 + parsed.Minute()
}
