package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Cancellations computes refund and penalty amounts for cancellation
// requests and manages the reversible grace window. The cell is
// released when the request is recorded; Undo must therefore re-claim
// it and can legitimately lose to an interim booking.
type Cancellations struct {
	ledger *Ledger
	store  Store
	nowFn  func() int64
	logger OperationLogger
	config Config
}

// NewCancellations wires the policy engine.
func NewCancellations(ledger *Ledger, store Store, now func() int64, config Config) (*Cancellations, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Cancellations{ledger: ledger, store: store, nowFn: now, config: config}, nil
}

// Request cancels a Confirmed reservation, computes the refund and
// penalty from the field policy, frees the cell, and opens the undo
// window.
func (cancellations *Cancellations) Request(ctx context.Context, reservationID ReservationID, actor ActorRole, reason string) (CancellationRequest, error) {
	if _, err := ParseActorRole(actor.String()); err != nil {
		return CancellationRequest{}, err
	}
	requestID, err := NewRequestID(uuid.NewString())
	if err != nil {
		return CancellationRequest{}, err
	}
	now := cancellations.nowFn()
	var request CancellationRequest
	var cancelled Reservation
	operationError := cancellations.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		reservation, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != BookingConfirmed {
			return fmt.Errorf("%w: reservation is %s, not confirmed", ErrInvalidState, reservation.Status)
		}
		policy, err := transactionStore.FieldPolicy(ctx, reservation.Cell.FieldID)
		if err != nil {
			return err
		}
		slot, err := SlotByID(reservation.Cell.SlotID)
		if err != nil {
			return err
		}
		leadSeconds := slot.StartOn(reservation.Cell.Date).Unix() - now
		refund, penalty := evaluateRefund(policy, reservation.DepositCents, leadSeconds, actor)
		if err := transactionStore.UpdateReservationStatus(ctx, reservationID, BookingConfirmed, BookingCancelled); err != nil {
			return err
		}
		reservation.Status = BookingCancelled
		reservation.CancelledUnixUTC = now
		reservation.CancelReason = reason
		reservation.CancelActor = actor
		if err := transactionStore.SaveReservation(ctx, reservation); err != nil {
			return err
		}
		if err := transactionStore.ReleaseCell(ctx, reservation.Cell); err != nil {
			return err
		}
		request = CancellationRequest{
			ID:               requestID,
			ReservationID:    reservationID,
			Actor:            actor,
			Reason:           reason,
			RefundCents:      refund,
			PenaltyCents:     penalty,
			UndoAllowedUntil: now + cancellations.config.UndoWindowSeconds,
			State:            CancellationOpen,
			CreatedUnixUTC:   now,
		}
		cancelled = reservation
		return transactionStore.CreateCancellation(ctx, request)
	})
	cancellations.logOperation(ctx, OperationLog{
		Operation:     operationCancelRequest,
		UserID:        cancelled.UserID,
		ReservationID: reservationID,
		Cell:          cancelled.Cell.Key(),
		Amount:        request.RefundCents,
		Error:         operationError,
	})
	if operationError != nil {
		return CancellationRequest{}, operationError
	}
	cancellations.ledger.notify(ctx, cancelled.UserID, notifyReservationCancelled, reservationID.String(), reason)
	return request, nil
}

// Undo reverses an open cancellation within its grace window. The cell
// must be re-claimed: if another user took it in the interim, Undo
// fails with ErrCellConflict and their reservation stays intact.
func (cancellations *Cancellations) Undo(ctx context.Context, requestID RequestID) (Reservation, error) {
	now := cancellations.nowFn()
	var restored Reservation
	operationError := cancellations.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.GetCancellation(ctx, requestID)
		if err != nil {
			return err
		}
		if request.State != CancellationOpen {
			return fmt.Errorf("%w: cancellation is %s, not open", ErrInvalidState, request.State)
		}
		if now > request.UndoAllowedUntil {
			return fmt.Errorf("%w: undo window lapsed", ErrInvalidState)
		}
		reservation, err := transactionStore.GetReservation(ctx, request.ReservationID)
		if err != nil {
			return err
		}
		if reservation.Status != BookingCancelled {
			return fmt.Errorf("%w: reservation is %s, not cancelled", ErrInvalidState, reservation.Status)
		}
		if err := transactionStore.ClaimCell(ctx, reservation.Cell); err != nil {
			return err
		}
		if err := transactionStore.UpdateReservationStatus(ctx, request.ReservationID, BookingCancelled, BookingConfirmed); err != nil {
			return err
		}
		reservation.Status = BookingConfirmed
		reservation.CancelledUnixUTC = 0
		reservation.CancelReason = ""
		reservation.CancelActor = ""
		if err := transactionStore.SaveReservation(ctx, reservation); err != nil {
			return err
		}
		if err := transactionStore.UpdateCancellationState(ctx, requestID, CancellationOpen, CancellationUndone); err != nil {
			return err
		}
		restored = reservation
		return nil
	})
	cancellations.logOperation(ctx, OperationLog{
		Operation:     operationCancelUndo,
		UserID:        restored.UserID,
		ReservationID: restored.ID,
		Cell:          restored.Cell.Key(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return restored, nil
}

// Finalize locks in the refund and penalty once the undo window has
// lapsed. Finalizing an undone or already-finalized request is a no-op.
func (cancellations *Cancellations) Finalize(ctx context.Context, requestID RequestID) error {
	now := cancellations.nowFn()
	operationError := cancellations.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.GetCancellation(ctx, requestID)
		if err != nil {
			return err
		}
		if request.State != CancellationOpen {
			return nil
		}
		if now <= request.UndoAllowedUntil {
			return fmt.Errorf("%w: undo window still open", ErrInvalidState)
		}
		if err := transactionStore.UpdateCancellationState(ctx, requestID, CancellationOpen, CancellationFinalized); err != nil {
			return err
		}
		if request.RefundCents <= 0 {
			return nil
		}
		reservation, err := transactionStore.GetReservation(ctx, request.ReservationID)
		if err != nil {
			return err
		}
		reservation.Payment = PaymentRefunded
		return transactionStore.SaveReservation(ctx, reservation)
	})
	cancellations.logOperation(ctx, OperationLog{
		Operation: operationCancelFinalize,
		Error:     operationError,
	})
	return operationError
}

// FinalizeDue finalizes every open cancellation whose undo window has
// lapsed and returns how many were applied. It shares the background
// sweep cadence with hold expiry.
func (cancellations *Cancellations) FinalizeDue(ctx context.Context) (int, error) {
	due, err := cancellations.store.ListDueCancellations(ctx, cancellations.nowFn(), cancellations.config.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	finalized := 0
	var lastErr error
	for _, request := range due {
		if err := cancellations.Finalize(ctx, request.ID); err != nil {
			lastErr = err
			continue
		}
		finalized++
	}
	return finalized, lastErr
}

// Get returns a cancellation request by id.
func (cancellations *Cancellations) Get(ctx context.Context, requestID RequestID) (CancellationRequest, error) {
	return cancellations.store.GetCancellation(ctx, requestID)
}

func (cancellations *Cancellations) logOperation(ctx context.Context, entry OperationLog) {
	if cancellations.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	cancellations.logger.LogOperation(ctx, entry)
}

// evaluateRefund applies the field policy. Owner-initiated
// cancellations refund the full deposit and charge the owner the
// penalty rate; player cancellations earn the full refund rate ahead of
// the cutoff, the late rate inside it, and nothing once the slot has
// started.
func evaluateRefund(policy CancellationPolicy, deposit AmountCents, leadSeconds int64, actor ActorRole) (AmountCents, AmountCents) {
	if actor == RoleOwner {
		penalty := AmountCents(deposit.Int64() * int64(policy.OwnerPenaltyRatePercent) / 100)
		return deposit, penalty
	}
	cutoff := int64(policy.CancelBeforeHours) * 3600
	lateRate := policy.LateRefundRatePercent
	if lateRate > policy.RefundRatePercent {
		lateRate = policy.RefundRatePercent
	}
	switch {
	case leadSeconds >= cutoff:
		return AmountCents(deposit.Int64() * int64(policy.RefundRatePercent) / 100), 0
	case leadSeconds > 0:
		return AmountCents(deposit.Int64() * int64(lateRate) / 100), 0
	default:
		return 0, 0
	}
}
