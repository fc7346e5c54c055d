package booking

import (
	"context"
	"fmt"
)

// Holds issues short-lived provisional claims while a payer completes
// payment. A hold past its expiry is only reclaimed by the sweep:
// client disconnection alone never releases it, since payment may still
// complete out-of-band within the TTL.
type Holds struct {
	ledger *Ledger
	store  Store
	nowFn  func() int64
	logger OperationLogger
	config Config
}

// NewHolds wires a hold manager over the ledger.
func NewHolds(ledger *Ledger, store Store, now func() int64, config Config) (*Holds, error) {
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
	return &Holds{ledger: ledger, store: store, nowFn: now, config: config}, nil
}

// HoldInput describes one requested hold.
type HoldInput struct {
	Cell           Cell
	UserID         UserID
	AmountCents    AmountCents
	OpponentWanted bool
	RecurringGroup string
	MetadataJSON   string
}

// CreateHold claims the cell and stamps an expiry. The deposit is the
// configured share of the amount; the rest is due after confirmation.
func (holds *Holds) CreateHold(ctx context.Context, input HoldInput) (Hold, error) {
	if input.AmountCents <= 0 {
		return Hold{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	slot, err := SlotByID(input.Cell.SlotID)
	if err != nil {
		return Hold{}, err
	}
	if holds.config.MaxBookingMinutes > 0 && slot.Minutes() > holds.config.MaxBookingMinutes {
		return Hold{}, fmt.Errorf("%w: slot length %dm over cap %dm", ErrDurationLimitExceeded, slot.Minutes(), holds.config.MaxBookingMinutes)
	}
	expiresAt := holds.nowFn() + holds.config.HoldTTLSeconds
	deposit := depositShare(input.AmountCents, holds.config.DepositRatePercent)
	reservation, err := holds.ledger.TryClaim(ctx, ClaimInput{
		Cell:           input.Cell,
		UserID:         input.UserID,
		TotalCents:     input.AmountCents,
		DepositCents:   deposit,
		OpponentWanted: input.OpponentWanted,
		RecurringGroup: input.RecurringGroup,
		HoldExpiresAt:  expiresAt,
		MetadataJSON:   input.MetadataJSON,
	})
	if err != nil {
		return Hold{}, err
	}
	holds.logOperation(ctx, OperationLog{
		Operation:     operationCreateHold,
		UserID:        input.UserID,
		ReservationID: reservation.ID,
		Cell:          input.Cell.Key(),
		Amount:        input.AmountCents,
	})
	return Hold{
		ReservationID:    reservation.ID,
		Cell:             input.Cell,
		TotalCents:       reservation.TotalCents,
		DepositCents:     reservation.DepositCents,
		ExpiresAtUnixUTC: expiresAt,
	}, nil
}

// Quote resolves the price a hold on the cell would cost.
func (holds *Holds) Quote(ctx context.Context, fieldID FieldID, slotID SlotID) (AmountCents, error) {
	return holds.store.PriceFor(ctx, fieldID, slotID)
}

// ConfirmPayment converts a live hold into a Confirmed reservation. A
// hold past its expiry is released and the caller gets ErrHoldExpired:
// they must request a fresh hold.
func (holds *Holds) ConfirmPayment(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	reservation, err := holds.ledger.Get(ctx, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	if reservation.Status != BookingPending {
		return Reservation{}, fmt.Errorf("%w: reservation is %s, not pending", ErrInvalidState, reservation.Status)
	}
	if reservation.HoldExpiresAt != 0 && holds.nowFn() > reservation.HoldExpiresAt {
		if releaseErr := holds.ledger.Release(ctx, reservationID, releaseReasonPaymentTimeout, RoleSystem, BookingExpired); releaseErr != nil {
			return Reservation{}, releaseErr
		}
		expiredErr := fmt.Errorf("%w: hold lapsed before payment", ErrHoldExpired)
		holds.logOperation(ctx, OperationLog{
			Operation:     operationConfirmPayment,
			UserID:        reservation.UserID,
			ReservationID: reservationID,
			Cell:          reservation.Cell.Key(),
			Error:         expiredErr,
		})
		return Reservation{}, expiredErr
	}
	confirmed, err := holds.ledger.Confirm(ctx, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	holds.logOperation(ctx, OperationLog{
		Operation:     operationConfirmPayment,
		UserID:        confirmed.UserID,
		ReservationID: reservationID,
		Cell:          confirmed.Cell.Key(),
		Amount:        confirmed.TotalCents,
	})
	return confirmed, nil
}

// ExpireStaleHolds releases Pending reservations whose expiry has
// lapsed and returns how many were reclaimed. It runs on the sweep
// cadence so an abandoned checkout can never strand a cell as falsely
// Booked.
func (holds *Holds) ExpireStaleHolds(ctx context.Context) (int, error) {
	stale, err := holds.store.ListExpiredPending(ctx, holds.nowFn(), holds.config.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	var lastErr error
	for _, reservation := range stale {
		if err := holds.ledger.Release(ctx, reservation.ID, releaseReasonExpired, RoleSystem, BookingExpired); err != nil {
			// Keep sweeping; a single failed release must not strand
			// the rest of the batch.
			lastErr = err
			continue
		}
		expired++
	}
	holds.logOperation(ctx, OperationLog{
		Operation: operationExpireSweep,
		Count:     expired,
		Error:     lastErr,
	})
	return expired, lastErr
}

func (holds *Holds) logOperation(ctx context.Context, entry OperationLog) {
	if holds.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	holds.logger.LogOperation(ctx, entry)
}

func depositShare(amount AmountCents, ratePercent int) AmountCents {
	return AmountCents(amount.Int64() * int64(ratePercent) / 100)
}
