package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Field represents the fields table.
type Field struct {
	FieldID       string `gorm:"primaryKey"`
	ComplexID     string `gorm:"index"`
	FieldType     string `gorm:"not null"`
	BaselineCents int64  `gorm:"not null"`
	Status        string `gorm:"not null"`
	OwnerUserID   string `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Field) TableName() string { return "fields" }

// TimeSlot mirrors the fixed slot catalog.
type TimeSlot struct {
	SlotID     int    `gorm:"primaryKey;autoIncrement:false"`
	StartClock string `gorm:"not null"`
	EndClock   string `gorm:"not null"`
}

func (TimeSlot) TableName() string { return "time_slots" }

// FieldPrice is the per-(field, slot) price override.
type FieldPrice struct {
	FieldID    string `gorm:"not null;index:idx_field_prices_field_slot,unique,priority:1"`
	SlotID     int    `gorm:"not null;index:idx_field_prices_field_slot,unique,priority:2"`
	PriceCents int64  `gorm:"not null"`
}

func (FieldPrice) TableName() string { return "field_prices" }

// FieldSchedule is the contended cell. The unique index over
// (field_id, date, slot_id) is the storage-level at-most-one-claim
// enforcement.
type FieldSchedule struct {
	ScheduleID string `gorm:"type:uuid;primaryKey"`
	FieldID    string `gorm:"not null;index:idx_field_schedules_cell,unique,priority:1"`
	Date       string `gorm:"not null;index:idx_field_schedules_cell,unique,priority:2"`
	SlotID     int    `gorm:"not null;index:idx_field_schedules_cell,unique,priority:3"`
	Status     string `gorm:"not null"`
	UpdatedAt  time.Time
}

func (FieldSchedule) TableName() string { return "field_schedules" }

func (schedule *FieldSchedule) BeforeCreate(tx *gorm.DB) error {
	if schedule.ScheduleID == "" {
		schedule.ScheduleID = uuid.NewString()
	}
	return nil
}

// Reservation mirrors the reservations table.
type Reservation struct {
	ReservationID    string `gorm:"primaryKey"`
	UserID           string `gorm:"index"`
	FieldID          string `gorm:"not null;index:idx_reservations_cell,priority:1"`
	Date             string `gorm:"not null;index:idx_reservations_cell,priority:2"`
	SlotID           int    `gorm:"not null;index:idx_reservations_cell,priority:3"`
	TotalCents       int64  `gorm:"not null"`
	DepositCents     int64  `gorm:"not null"`
	RemainingCents   int64  `gorm:"not null"`
	Status           string `gorm:"not null;index"`
	PaymentStatus    string `gorm:"not null"`
	OpponentWanted   bool
	RecurringGroup   string `gorm:"index"`
	HoldExpiresAt    int64  `gorm:"index"`
	ConfirmedUnixUTC int64
	CancelledUnixUTC int64
	CancelReason     string
	CancelActor      string
	Metadata         datatypes.JSON `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Reservation) TableName() string { return "reservations" }

// CancellationRequest mirrors the cancellation_requests table.
type CancellationRequest struct {
	RequestID        string `gorm:"primaryKey"`
	ReservationID    string `gorm:"index"`
	Actor            string `gorm:"not null"`
	Reason           string
	RefundCents      int64  `gorm:"not null"`
	PenaltyCents     int64  `gorm:"not null"`
	UndoAllowedUntil int64  `gorm:"index"`
	State            string `gorm:"not null;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (CancellationRequest) TableName() string { return "cancellation_requests" }

// CancellationPolicy is the per-field refund policy row.
type CancellationPolicy struct {
	FieldID                 string `gorm:"primaryKey"`
	CancelBeforeHours       int    `gorm:"not null"`
	RefundRatePercent       int    `gorm:"not null"`
	LateRefundRatePercent   int    `gorm:"not null"`
	OwnerPenaltyRatePercent int    `gorm:"not null"`
}

func (CancellationPolicy) TableName() string { return "cancellation_policies" }
