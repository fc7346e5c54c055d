package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Ledger is the single source of truth for slot claims. It guarantees
// at most one active reservation per cell: two concurrent TryClaim
// calls on the same cell have exactly one winner, and the loser
// observes the committed state of the first.
type Ledger struct {
	store    Store
	nowFn    func() int64
	logger   OperationLogger
	notifier Notifier
}

// ClaimInput describes one attempted claim on a cell.
type ClaimInput struct {
	Cell           Cell
	UserID         UserID
	TotalCents     AmountCents
	DepositCents   AmountCents
	OpponentWanted bool
	RecurringGroup string
	HoldExpiresAt  int64
	MetadataJSON   string
}

// NewLedger wires a Ledger.
func NewLedger(store Store, now func() int64) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Ledger{store: store, nowFn: now}, nil
}

// TryClaim atomically claims the cell and records a Pending
// reservation. The check-and-set and the reservation insert share one
// transaction keyed by the cell; the loser of a race receives
// ErrCellConflict, never a double booking.
func (ledger *Ledger) TryClaim(ctx context.Context, input ClaimInput) (Reservation, error) {
	if input.UserID.String() == "" {
		return Reservation{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if input.Cell.FieldID.String() == "" || input.Cell.Date.IsZero() {
		return Reservation{}, fmt.Errorf("%w: incomplete cell", ErrValidation)
	}
	if _, err := SlotByID(input.Cell.SlotID); err != nil {
		return Reservation{}, err
	}
	if input.TotalCents <= 0 {
		return Reservation{}, fmt.Errorf("%w: total must be positive", ErrValidation)
	}
	reservationID, err := NewReservationID(uuid.NewString())
	if err != nil {
		return Reservation{}, err
	}
	reservation := Reservation{
		ID:             reservationID,
		UserID:         input.UserID,
		Cell:           input.Cell,
		TotalCents:     input.TotalCents,
		DepositCents:   input.DepositCents,
		RemainingCents: input.TotalCents - input.DepositCents,
		Status:         BookingPending,
		Payment:        PaymentPending,
		OpponentWanted: input.OpponentWanted,
		RecurringGroup: input.RecurringGroup,
		HoldExpiresAt:  input.HoldExpiresAt,
		CreatedUnixUTC: ledger.nowFn(),
		MetadataJSON:   input.MetadataJSON,
	}
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := transactionStore.ClaimCell(ctx, input.Cell); err != nil {
			return err
		}
		return transactionStore.CreateReservation(ctx, reservation)
	})
	ledger.logOperation(ctx, OperationLog{
		Operation:     operationClaim,
		UserID:        input.UserID,
		ReservationID: reservationID,
		Cell:          input.Cell.Key(),
		Amount:        input.TotalCents,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return reservation, nil
}

// Confirm transitions a Pending reservation to Confirmed after payment
// success and marks the deposit paid.
func (ledger *Ledger) Confirm(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	var confirmed Reservation
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		reservation, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != BookingPending {
			return fmt.Errorf("%w: reservation is %s, not pending", ErrInvalidState, reservation.Status)
		}
		if err := transactionStore.UpdateReservationStatus(ctx, reservationID, BookingPending, BookingConfirmed); err != nil {
			return err
		}
		reservation.Status = BookingConfirmed
		reservation.Payment = PaymentPaid
		reservation.ConfirmedUnixUTC = ledger.nowFn()
		if err := transactionStore.SaveReservation(ctx, reservation); err != nil {
			return err
		}
		confirmed = reservation
		return nil
	})
	ledger.logOperation(ctx, OperationLog{
		Operation:     operationConfirm,
		UserID:        confirmed.UserID,
		ReservationID: reservationID,
		Cell:          confirmed.Cell.Key(),
		Amount:        confirmed.TotalCents,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	ledger.notify(ctx, confirmed.UserID, notifyReservationConfirmed, reservationID.String(), "reservation confirmed for "+confirmed.Cell.Key())
	if confirmed.OpponentWanted {
		ledger.notify(ctx, confirmed.UserID, notifyOpponentWanted, reservationID.String(), "opponent wanted for "+confirmed.Cell.Key())
	}
	return confirmed, nil
}

// Release moves a reservation to a terminal state and reverts its cell
// to Available. Releasing an already-released reservation is a no-op,
// not an error.
func (ledger *Ledger) Release(ctx context.Context, reservationID ReservationID, reason string, actor ActorRole, to BookingStatus) error {
	if !to.Terminal() {
		return fmt.Errorf("%w: release target must be terminal, got %s", ErrValidation, to)
	}
	var released Reservation
	alreadyReleased := false
	operationError := ledger.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		reservation, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status.Terminal() {
			alreadyReleased = true
			return nil
		}
		if err := transactionStore.UpdateReservationStatus(ctx, reservationID, reservation.Status, to); err != nil {
			return err
		}
		reservation.Status = to
		reservation.CancelledUnixUTC = ledger.nowFn()
		reservation.CancelReason = reason
		reservation.CancelActor = actor
		if err := transactionStore.SaveReservation(ctx, reservation); err != nil {
			return err
		}
		if err := transactionStore.ReleaseCell(ctx, reservation.Cell); err != nil {
			return err
		}
		released = reservation
		return nil
	})
	ledger.logOperation(ctx, OperationLog{
		Operation:     operationRelease,
		UserID:        released.UserID,
		ReservationID: reservationID,
		Cell:          released.Cell.Key(),
		Error:         operationError,
	})
	if operationError != nil || alreadyReleased {
		return operationError
	}
	eventType := notifyReservationCancelled
	if to == BookingExpired {
		eventType = notifyReservationExpired
	}
	ledger.notify(ctx, released.UserID, eventType, reservationID.String(), reason)
	return nil
}

// Get returns a reservation by id.
func (ledger *Ledger) Get(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	return ledger.store.GetReservation(ctx, reservationID)
}

// ListForUser returns a user's reservations, newest first.
func (ledger *Ledger) ListForUser(ctx context.Context, userID UserID, limit int) ([]Reservation, error) {
	return ledger.store.ListUserReservations(ctx, userID, limit)
}

func (ledger *Ledger) logOperation(ctx context.Context, entry OperationLog) {
	if ledger.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	ledger.logger.LogOperation(ctx, entry)
}

// notify delivers a fire-and-forget event; failures are logged and
// never affect the reservation state that was already committed.
func (ledger *Ledger) notify(ctx context.Context, userID UserID, eventType string, refID string, message string) {
	if ledger.notifier == nil {
		return
	}
	if err := ledger.notifier.Notify(ctx, userID, eventType, refID, message); err != nil {
		ledger.logOperation(ctx, OperationLog{
			Operation: eventType,
			UserID:    userID,
			Status:    operationStatusError,
			Error:     err,
		})
	}
}
