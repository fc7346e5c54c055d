package booking

import (
	"context"
	"testing"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func TestLedgerLogsClaimOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	ledger := mustLedger(test, store, fixedClock(1000))
	logger := &recorderLogger{}
	ledger.logger = logger
	input := claimInputFor(test, mustCell(test, "field-1", "2024-06-01", 3), "user-1")

	reservation, err := ledger.TryClaim(context.Background(), input)
	if err != nil {
		test.Fatalf("claim: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationClaim || entry.UserID != input.UserID || entry.ReservationID != reservation.ID {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Cell != input.Cell.Key() || entry.Amount != input.TotalCents {
		test.Fatalf("unexpected log payload: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected ok status, got %+v", entry)
	}
}

func TestLedgerLogsErrorStatusOnConflict(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	ledger := mustLedger(test, store, fixedClock(1000))
	cell := mustCell(test, "field-1", "2024-06-01", 3)
	if _, err := ledger.TryClaim(context.Background(), claimInputFor(test, cell, "user-1")); err != nil {
		test.Fatalf("first claim: %v", err)
	}

	logger := &recorderLogger{}
	ledger.logger = logger
	if _, err := ledger.TryClaim(context.Background(), claimInputFor(test, cell, "user-2")); err == nil {
		test.Fatalf("expected conflict")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	if logger.entries[0].Status != operationStatusError || logger.entries[0].Error == nil {
		test.Fatalf("expected error log entry, got %+v", logger.entries[0])
	}
}
