package booking

import (
	"fmt"
	"strings"
	"time"
)

// AmountCents is an integer currency amount in cents. Zero is permitted
// (refunds can round down to nothing); negative amounts are not.
type AmountCents int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// NewPositiveAmountCents validates a strictly positive amount.
func NewPositiveAmountCents(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// Int64 returns the raw cent value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// FieldID identifies a bookable venue unit.
type FieldID struct {
	value string
}

// NewFieldID validates and normalizes a field id.
func NewFieldID(raw string) (FieldID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return FieldID{}, fmt.Errorf("%w: empty value", ErrInvalidFieldID)
	}
	return FieldID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id FieldID) String() string {
	return id.value
}

// UserID identifies the booking party.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// ReservationID identifies a reservation record.
type ReservationID struct {
	value string
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReservationID{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	return ReservationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// RequestID identifies a cancellation request.
type RequestID struct {
	value string
}

// NewRequestID validates and normalizes a cancellation request id.
func NewRequestID(raw string) (RequestID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RequestID{}, fmt.Errorf("%w: empty value", ErrInvalidRequestID)
	}
	return RequestID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RequestID) String() string {
	return id.value
}

// SlotID is the stable ordinal of a catalog slot.
type SlotID int

// NewSlotID validates the ordinal against the fixed catalog.
func NewSlotID(raw int) (SlotID, error) {
	if raw < 1 || raw > len(slotCatalog) {
		return 0, fmt.Errorf("%w: slot %d outside catalog", ErrInvalidSlotID, raw)
	}
	return SlotID(raw), nil
}

// Int returns the raw ordinal.
func (id SlotID) Int() int {
	return int(id)
}

const dateLayout = "2006-01-02"

// Date is a calendar day, normalized to midnight UTC.
type Date struct {
	value time.Time
}

// NewDate parses an ISO calendar date (YYYY-MM-DD).
func NewDate(raw string) (Date, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q is not a calendar date", ErrInvalidDate, raw)
	}
	return Date{value: parsed.UTC()}, nil
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(at time.Time) Date {
	utc := at.UTC()
	return Date{value: time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)}
}

// String returns the ISO form.
func (date Date) String() string {
	return date.value.Format(dateLayout)
}

// Weekday returns the day of week.
func (date Date) Weekday() time.Weekday {
	return date.value.Weekday()
}

// AddDays returns the date shifted by whole days.
func (date Date) AddDays(days int) Date {
	return Date{value: date.value.AddDate(0, 0, days)}
}

// After reports whether date falls after other.
func (date Date) After(other Date) bool {
	return date.value.After(other.value)
}

// IsZero reports an unset date.
func (date Date) IsZero() bool {
	return date.value.IsZero()
}

// Cell is the atomic unit of booking contention: one (field, date, slot)
// triple. The whole engine exists to guarantee at most one active claim
// per cell.
type Cell struct {
	FieldID FieldID
	Date    Date
	SlotID  SlotID
}

// Key returns the natural-key string used for logging and correlation.
func (cell Cell) Key() string {
	return cell.FieldID.String() + "|" + cell.Date.String() + "|" + fmt.Sprint(cell.SlotID.Int())
}

// CellStatus is the schedule-cell state.
type CellStatus string

const (
	CellAvailable   CellStatus = "available"
	CellBooked      CellStatus = "booked"
	CellMaintenance CellStatus = "maintenance"
)

// String returns the stored form.
func (status CellStatus) String() string {
	return string(status)
}

// ParseCellStatus validates a stored cell status.
func ParseCellStatus(raw string) (CellStatus, error) {
	switch CellStatus(raw) {
	case CellAvailable, CellBooked, CellMaintenance:
		return CellStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCellStatus, raw)
}

// BookingStatus is the reservation lifecycle state.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
)

// String returns the stored form.
func (status BookingStatus) String() string {
	return string(status)
}

// ParseBookingStatus validates a stored booking status.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch BookingStatus(raw) {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingExpired:
		return BookingStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
}

// Terminal reports whether no further lifecycle transition applies.
func (status BookingStatus) Terminal() bool {
	return status == BookingCancelled || status == BookingExpired
}

// PaymentStatus tracks the money side of a reservation.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// String returns the stored form.
func (status PaymentStatus) String() string {
	return string(status)
}

// ParsePaymentStatus validates a stored payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch PaymentStatus(raw) {
	case PaymentPending, PaymentPaid, PaymentRefunded:
		return PaymentStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, raw)
}

// ActorRole gates cancellation-policy branches.
type ActorRole string

const (
	RolePlayer ActorRole = "player"
	RoleOwner  ActorRole = "owner"
	RoleAdmin  ActorRole = "admin"
	RoleSystem ActorRole = "system"
)

// String returns the stored form.
func (role ActorRole) String() string {
	return string(role)
}

// ParseActorRole validates an actor role.
func ParseActorRole(raw string) (ActorRole, error) {
	switch ActorRole(raw) {
	case RolePlayer, RoleOwner, RoleAdmin, RoleSystem:
		return ActorRole(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidActorRole, raw)
}

// CancellationState is the cancellation-request lifecycle.
type CancellationState string

const (
	CancellationOpen      CancellationState = "open"
	CancellationUndone    CancellationState = "undone"
	CancellationFinalized CancellationState = "finalized"
)

// String returns the stored form.
func (state CancellationState) String() string {
	return string(state)
}

// ParseCancellationState validates a stored cancellation state.
func ParseCancellationState(raw string) (CancellationState, error) {
	switch CancellationState(raw) {
	case CancellationOpen, CancellationUndone, CancellationFinalized:
		return CancellationState(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCancellationState, raw)
}

// Reservation is a player's claim on one cell.
type Reservation struct {
	ID               ReservationID
	UserID           UserID
	Cell             Cell
	TotalCents       AmountCents
	DepositCents     AmountCents
	RemainingCents   AmountCents
	Status           BookingStatus
	Payment          PaymentStatus
	OpponentWanted   bool
	RecurringGroup   string
	HoldExpiresAt    int64
	CreatedUnixUTC   int64
	ConfirmedUnixUTC int64
	CancelledUnixUTC int64
	CancelReason     string
	CancelActor      ActorRole
	MetadataJSON     string
}

// Hold is the caller-facing view of a provisional claim.
type Hold struct {
	ReservationID    ReservationID
	Cell             Cell
	TotalCents       AmountCents
	DepositCents     AmountCents
	ExpiresAtUnixUTC int64
}

// CancellationRequest records a reversible cancellation and its computed
// refund and penalty amounts.
type CancellationRequest struct {
	ID               RequestID
	ReservationID    ReservationID
	Actor            ActorRole
	Reason           string
	RefundCents      AmountCents
	PenaltyCents     AmountCents
	UndoAllowedUntil int64
	State            CancellationState
	CreatedUnixUTC   int64
}

// CancellationPolicy is the per-field refund contract. Rates are whole
// percentages applied to the deposit.
type CancellationPolicy struct {
	CancelBeforeHours       int
	RefundRatePercent       int
	LateRefundRatePercent   int
	OwnerPenaltyRatePercent int
}

// Field describes a bookable venue unit.
type Field struct {
	ID            FieldID
	ComplexID     string
	FieldType     string
	BaselineCents AmountCents
	Status        string
	OwnerUserID   UserID
}
