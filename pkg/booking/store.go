package booking

import "context"

// Store is the persistence contract used by the engine services.
//
// All mutations to one cell happen inside a single WithTx scope; the
// implementations back ClaimCell with the unique (field_id, date,
// slot_id) constraint plus row locking, which is the actual
// at-most-one-claim enforcement at the storage layer.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	// Schedule cells. Cells are created lazily: a missing row reads as
	// Available.
	GetCellStatus(ctx context.Context, cell Cell) (CellStatus, error)
	ListCellStatuses(ctx context.Context, fieldID FieldID, date Date) (map[SlotID]CellStatus, error)
	// ClaimCell transitions Available (or absent) to Booked, returning
	// ErrCellConflict for any other starting state or a concurrent
	// claim of the same cell.
	ClaimCell(ctx context.Context, cell Cell) error
	// ReleaseCell transitions Booked back to Available. Maintenance
	// cells are left untouched; releasing an Available or absent cell
	// is a no-op.
	ReleaseCell(ctx context.Context, cell Cell) error
	SetCellMaintenance(ctx context.Context, cell Cell, maintenance bool) error

	// Reservations.
	CreateReservation(ctx context.Context, reservation Reservation) error
	// GetReservation locks the row for update inside a transaction.
	GetReservation(ctx context.Context, id ReservationID) (Reservation, error)
	// UpdateReservationStatus is a compare-and-set on the lifecycle
	// column; zero rows affected surfaces as ErrInvalidState.
	UpdateReservationStatus(ctx context.Context, id ReservationID, from BookingStatus, to BookingStatus) error
	SaveReservation(ctx context.Context, reservation Reservation) error
	ListExpiredPending(ctx context.Context, nowUnixUTC int64, limit int) ([]Reservation, error)
	ListUserReservations(ctx context.Context, userID UserID, limit int) ([]Reservation, error)

	// Cancellation requests.
	CreateCancellation(ctx context.Context, request CancellationRequest) error
	GetCancellation(ctx context.Context, id RequestID) (CancellationRequest, error)
	UpdateCancellationState(ctx context.Context, id RequestID, from CancellationState, to CancellationState) error
	ListDueCancellations(ctx context.Context, nowUnixUTC int64, limit int) ([]CancellationRequest, error)

	// Pricing and policy lookups. PriceFor resolves the FieldPrice
	// override first and falls back to the field's baseline price.
	PriceFor(ctx context.Context, fieldID FieldID, slotID SlotID) (AmountCents, error)
	FieldPolicy(ctx context.Context, fieldID FieldID) (CancellationPolicy, error)
	GetField(ctx context.Context, fieldID FieldID) (Field, error)
}
