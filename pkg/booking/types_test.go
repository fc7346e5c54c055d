package booking

import (
	"errors"
	"testing"
	"time"
)

func TestIdentifierValidation(test *testing.T) {
	test.Parallel()
	if _, err := NewFieldID("  "); !errors.Is(err, ErrInvalidFieldID) {
		test.Fatalf("expected ErrInvalidFieldID, got %v", err)
	}
	if _, err := NewUserID(""); !errors.Is(err, ErrInvalidUserID) {
		test.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := NewReservationID(""); !errors.Is(err, ErrInvalidReservationID) {
		test.Fatalf("expected ErrInvalidReservationID, got %v", err)
	}
	if _, err := NewRequestID(""); !errors.Is(err, ErrInvalidRequestID) {
		test.Fatalf("expected ErrInvalidRequestID, got %v", err)
	}
	fieldID, err := NewFieldID("  field-1  ")
	if err != nil {
		test.Fatalf("field id: %v", err)
	}
	if fieldID.String() != "field-1" {
		test.Fatalf("expected trimmed id, got %q", fieldID.String())
	}
}

func TestAmountValidation(test *testing.T) {
	test.Parallel()
	if _, err := NewAmountCents(-1); !errors.Is(err, ErrInvalidAmountCents) {
		test.Fatalf("expected ErrInvalidAmountCents, got %v", err)
	}
	if amount, err := NewAmountCents(0); err != nil || amount != 0 {
		test.Fatalf("zero amount should be allowed, got %d %v", amount, err)
	}
	if _, err := NewPositiveAmountCents(0); !errors.Is(err, ErrInvalidAmountCents) {
		test.Fatalf("expected ErrInvalidAmountCents for zero, got %v", err)
	}
}

func TestDateParsingAndArithmetic(test *testing.T) {
	test.Parallel()
	if _, err := NewDate("06/01/2024"); !errors.Is(err, ErrInvalidDate) {
		test.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	date, err := NewDate("2024-01-31")
	if err != nil {
		test.Fatalf("date: %v", err)
	}
	if date.Weekday() != time.Wednesday {
		test.Fatalf("expected Wednesday, got %s", date.Weekday())
	}
	if shifted := date.AddDays(1); shifted.String() != "2024-02-01" {
		test.Fatalf("expected month rollover, got %s", shifted.String())
	}
	if !date.AddDays(7).After(date) {
		test.Fatalf("expected later date to compare after")
	}
	truncated := DateOf(time.Date(2024, time.June, 1, 23, 59, 0, 0, time.UTC))
	if truncated.String() != "2024-06-01" {
		test.Fatalf("expected truncation to day, got %s", truncated.String())
	}
}

func TestCellKeyFormat(test *testing.T) {
	test.Parallel()
	cell := mustCell(test, "field-1", "2024-06-01", 3)
	if cell.Key() != "field-1|2024-06-01|3" {
		test.Fatalf("unexpected key %q", cell.Key())
	}
}

func TestStatusParsersRejectUnknownValues(test *testing.T) {
	test.Parallel()
	if _, err := ParseCellStatus("blocked"); !errors.Is(err, ErrInvalidCellStatus) {
		test.Fatalf("expected ErrInvalidCellStatus, got %v", err)
	}
	if _, err := ParseBookingStatus("held"); !errors.Is(err, ErrInvalidBookingStatus) {
		test.Fatalf("expected ErrInvalidBookingStatus, got %v", err)
	}
	if _, err := ParsePaymentStatus("charged"); !errors.Is(err, ErrInvalidPaymentStatus) {
		test.Fatalf("expected ErrInvalidPaymentStatus, got %v", err)
	}
	if _, err := ParseActorRole("referee"); !errors.Is(err, ErrInvalidActorRole) {
		test.Fatalf("expected ErrInvalidActorRole, got %v", err)
	}
	if _, err := ParseCancellationState("closed"); !errors.Is(err, ErrInvalidCancellationState) {
		test.Fatalf("expected ErrInvalidCancellationState, got %v", err)
	}
}

func TestBookingStatusTerminal(test *testing.T) {
	test.Parallel()
	if BookingPending.Terminal() || BookingConfirmed.Terminal() {
		test.Fatalf("active statuses must not be terminal")
	}
	if !BookingCancelled.Terminal() || !BookingExpired.Terminal() {
		test.Fatalf("cancelled and expired must be terminal")
	}
}
