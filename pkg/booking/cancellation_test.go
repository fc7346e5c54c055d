package booking

import (
	"context"
	"errors"
	"testing"
)

func TestCancelAheadOfCutoffRefundsFullRate(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(slotStartUnix(test, "2024-06-01", 3) - 48*3600)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))
	cell := mustCell(test, "field-1", "2024-06-01", 3)
	reservation := mustConfirmed(test, holds, cell, "user-1")

	request, err := cancellations.Request(context.Background(), reservation.ID, RolePlayer, "travel plans changed")
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if request.RefundCents != 3000 {
		test.Fatalf("expected full deposit refund 3000, got %d", request.RefundCents)
	}
	if request.PenaltyCents != 0 {
		test.Fatalf("expected no penalty, got %d", request.PenaltyCents)
	}
	if request.State != CancellationOpen {
		test.Fatalf("expected open request, got %s", request.State)
	}
	if request.UndoAllowedUntil != clock.Now()+900 {
		test.Fatalf("unexpected undo deadline %d", request.UndoAllowedUntil)
	}
	if got := store.mustCellStatus(test, cell); got != CellAvailable {
		test.Fatalf("expected released cell, got %s", got)
	}
	cancelled := store.mustReservation(test, reservation.ID)
	if cancelled.Status != BookingCancelled || cancelled.CancelReason != "travel plans changed" {
		test.Fatalf("unexpected reservation state %s %q", cancelled.Status, cancelled.CancelReason)
	}
}

func TestCancelInsideCutoffRefundsLateRate(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(slotStartUnix(test, "2024-06-01", 3) - 3600)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))
	reservation := mustConfirmed(test, holds, mustCell(test, "field-1", "2024-06-01", 3), "user-1")

	request, err := cancellations.Request(context.Background(), reservation.ID, RolePlayer, "")
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if request.RefundCents != 1500 {
		test.Fatalf("expected late refund 1500, got %d", request.RefundCents)
	}
}

func TestCancelAfterSlotStartRefundsNothing(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(slotStartUnix(test, "2024-06-01", 3) + 60)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))
	reservation := mustConfirmed(test, holds, mustCell(test, "field-1", "2024-06-01", 3), "user-1")

	request, err := cancellations.Request(context.Background(), reservation.ID, RolePlayer, "")
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if request.RefundCents != 0 {
		test.Fatalf("expected no refund, got %d", request.RefundCents)
	}
}

func TestRefundNeverIncreasesAsStartApproaches(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()
	deposit := AmountCents(3000)
	leads := []int64{72 * 3600, 25 * 3600, 24 * 3600, 12 * 3600, 3600, 60, 0, -3600}

	previous := deposit + 1
	for _, lead := range leads {
		refund, _ := evaluateRefund(policy, deposit, lead, RolePlayer)
		if refund > previous {
			test.Fatalf("refund grew from %d to %d at lead %d", previous, refund, lead)
		}
		previous = refund
	}
}

func TestOwnerCancellationRefundsDepositAndCharges(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(slotStartUnix(test, "2024-06-01", 3) - 3600)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))
	reservation := mustConfirmed(test, holds, mustCell(test, "field-1", "2024-06-01", 3), "user-1")

	request, err := cancellations.Request(context.Background(), reservation.ID, RoleOwner, "pitch flooded")
	if err != nil {
		test.Fatalf("owner cancel: %v", err)
	}
	if request.RefundCents != 3000 {
		test.Fatalf("expected full refund 3000 regardless of timing, got %d", request.RefundCents)
	}
	if request.PenaltyCents != 600 {
		test.Fatalf("expected owner penalty 600, got %d", request.PenaltyCents)
	}
}

func TestCancelRejectsNonConfirmedReservation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(5000)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))
	hold := mustHold(test, holds, mustCell(test, "field-1", "2024-06-01", 3), "user-1")

	_, err := cancellations.Request(context.Background(), hold.ReservationID, RolePlayer, "")
	if !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState for pending reservation, got %v", err)
	}
}

func TestUndoRestoresReservationAndCell(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(slotStartUnix(test, "2024-06-01", 3) - 48*3600)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))
	cell := mustCell(test, "field-1", "2024-06-01", 3)
	reservation := mustConfirmed(test, holds, cell, "user-1")

	request, err := cancellations.Request(context.Background(), reservation.ID, RolePlayer, "second thoughts")
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	clock.Advance(300)

	restored, err := cancellations.Undo(context.Background(), request.ID)
	if err != nil {
		test.Fatalf("undo: %v", err)
	}
	if restored.Status != BookingConfirmed {
		test.Fatalf("expected restored confirmation, got %s", restored.Status)
	}
	if restored.CancelReason != "" || restored.CancelledUnixUTC != 0 {
		test.Fatalf("cancel fields not cleared: %q %d", restored.CancelReason, restored.CancelledUnixUTC)
	}
	if got := store.mustCellStatus(test, cell); got != CellBooked {
		test.Fatalf("expected re-claimed cell, got %s", got)
	}
	undone, err := cancellations.Get(context.Background(), request.ID)
	if err != nil {
		test.Fatalf("get request: %v", err)
	}
	if undone.State != CancellationUndone {
		test.Fatalf("expected undone request, got %s", undone.State)
	}
}

func TestUndoFailsWhenCellWasRetaken(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(slotStartUnix(test, "2024-06-01", 3) - 48*3600)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))
	cell := mustCell(test, "field-1", "2024-06-01", 3)
	reservation := mustConfirmed(test, holds, cell, "user-1")

	request, err := cancellations.Request(context.Background(), reservation.ID, RolePlayer, "")
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	interloper := mustHold(test, holds, cell, "user-2")

	_, err = cancellations.Undo(context.Background(), request.ID)
	if !errors.Is(err, ErrCellConflict) {
		test.Fatalf("expected ErrCellConflict, got %v", err)
	}
	if got := store.mustReservation(test, reservation.ID).Status; got != BookingCancelled {
		test.Fatalf("failed undo must leave reservation cancelled, got %s", got)
	}
	if got := store.mustReservation(test, interloper.ReservationID).Status; got != BookingPending {
		test.Fatalf("interloper reservation disturbed: %s", got)
	}
}

func TestUndoAfterWindowLapsesFails(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(slotStartUnix(test, "2024-06-01", 3) - 48*3600)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))
	reservation := mustConfirmed(test, holds, mustCell(test, "field-1", "2024-06-01", 3), "user-1")

	request, err := cancellations.Request(context.Background(), reservation.ID, RolePlayer, "")
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	clock.Advance(901)

	if _, err := cancellations.Undo(context.Background(), request.ID); !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState after window, got %v", err)
	}
}

func TestFinalizeLocksRefundAfterWindow(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(slotStartUnix(test, "2024-06-01", 3) - 48*3600)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))
	reservation := mustConfirmed(test, holds, mustCell(test, "field-1", "2024-06-01", 3), "user-1")

	request, err := cancellations.Request(context.Background(), reservation.ID, RolePlayer, "")
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}

	// Finalizing while the undo window is still open is refused.
	if err := cancellations.Finalize(context.Background(), request.ID); !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState inside window, got %v", err)
	}

	clock.Advance(901)
	if err := cancellations.Finalize(context.Background(), request.ID); err != nil {
		test.Fatalf("finalize: %v", err)
	}
	finalized, err := cancellations.Get(context.Background(), request.ID)
	if err != nil {
		test.Fatalf("get request: %v", err)
	}
	if finalized.State != CancellationFinalized {
		test.Fatalf("expected finalized, got %s", finalized.State)
	}
	if got := store.mustReservation(test, reservation.ID).Payment; got != PaymentRefunded {
		test.Fatalf("expected refunded payment, got %s", got)
	}

	// Finalizing again is a no-op.
	if err := cancellations.Finalize(context.Background(), request.ID); err != nil {
		test.Fatalf("repeat finalize: %v", err)
	}
}

func TestFinalizeDueSweepsLapsedRequests(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := newManualClock(slotStartUnix(test, "2024-06-01", 3) - 48*3600)
	cancellations, holds := mustCancellations(test, store, clock, testConfig(test))

	first := mustConfirmed(test, holds, mustCell(test, "field-1", "2024-06-01", 3), "user-1")
	second := mustConfirmed(test, holds, mustCell(test, "field-1", "2024-06-01", 4), "user-2")
	for _, reservation := range []Reservation{first, second} {
		if _, err := cancellations.Request(context.Background(), reservation.ID, RolePlayer, ""); err != nil {
			test.Fatalf("cancel: %v", err)
		}
	}

	clock.Advance(901)
	finalized, err := cancellations.FinalizeDue(context.Background())
	if err != nil {
		test.Fatalf("finalize due: %v", err)
	}
	if finalized != 2 {
		test.Fatalf("expected 2 finalized, got %d", finalized)
	}
}

func slotStartUnix(test *testing.T, date string, slot int) int64 {
	test.Helper()
	catalogSlot, err := SlotByID(mustSlotID(test, slot))
	if err != nil {
		test.Fatalf("slot %d: %v", slot, err)
	}
	return catalogSlot.StartOn(mustDate(test, date)).Unix()
}

func mustCancellations(test *testing.T, store Store, clock *manualClock, config Config) (*Cancellations, *Holds) {
	test.Helper()
	holds := mustHolds(test, store, clock.Now, config)
	cancellations, err := NewCancellations(mustLedger(test, store, clock.Now), store, clock.Now, config)
	if err != nil {
		test.Fatalf("new cancellations: %v", err)
	}
	return cancellations, holds
}

func mustConfirmed(test *testing.T, holds *Holds, cell Cell, user string) Reservation {
	test.Helper()
	hold := mustHold(test, holds, cell, user)
	reservation, err := holds.ConfirmPayment(context.Background(), hold.ReservationID)
	if err != nil {
		test.Fatalf("confirm payment: %v", err)
	}
	return reservation
}
