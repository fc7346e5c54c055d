package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/PitchsideLabs/fieldbook/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintScheduleCell = "idx_field_schedules_cell"
	defaultMetadataJSON    = "{}"
	pgUniqueViolationCode  = "23505"
	sqliteConstraintCode   = 19
	errorOperationStore    = "store"
	errorSubjectCell       = "cell"
	errorSubjectField      = "field"
	errorSubjectPrice      = "price"
	errorSubjectPolicy     = "policy"
	errorSubjectRequest    = "cancellation"
	errorSubjectBooking    = "reservation"
	errorCodeClaim         = "claim"
	errorCodeCreate        = "create"
	errorCodeGet           = "get"
	errorCodeInvalid       = "invalid"
	errorCodeList          = "list"
	errorCodeLookup        = "lookup"
	errorCodeRelease       = "release"
	errorCodeSave          = "save"
	errorCodeUpdateStatus  = "update_status"
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema and seeds the fixed slot catalog. Used for
// the sqlite deployment; postgres schemas are managed externally.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Field{},
		&TimeSlot{},
		&FieldPrice{},
		&FieldSchedule{},
		&Reservation{},
		&CancellationRequest{},
		&CancellationPolicy{},
	); err != nil {
		return err
	}
	for _, slot := range booking.Slots() {
		row := TimeSlot{SlotID: slot.ID.Int(), StartClock: slot.Start, EndClock: slot.End}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetCellStatus(ctx context.Context, cell booking.Cell) (booking.CellStatus, error) {
	var row FieldSchedule
	err := store.db.WithContext(ctx).
		Where("field_id = ? AND date = ? AND slot_id = ?", cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.CellAvailable, nil
	}
	if err != nil {
		return "", wrapStoreError(errorSubjectCell, errorCodeGet, err)
	}
	status, err := booking.ParseCellStatus(row.Status)
	if err != nil {
		return "", wrapStoreError(errorSubjectCell, errorCodeInvalid, err)
	}
	return status, nil
}

func (store *Store) ListCellStatuses(ctx context.Context, fieldID booking.FieldID, date booking.Date) (map[booking.SlotID]booking.CellStatus, error) {
	var rows []FieldSchedule
	err := store.db.WithContext(ctx).
		Where("field_id = ? AND date = ?", fieldID.String(), date.String()).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCell, errorCodeList, err)
	}
	statuses := make(map[booking.SlotID]booking.CellStatus, len(rows))
	for _, row := range rows {
		slotID, err := booking.NewSlotID(row.SlotID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCell, errorCodeInvalid, err)
		}
		status, err := booking.ParseCellStatus(row.Status)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCell, errorCodeInvalid, err)
		}
		statuses[slotID] = status
	}
	return statuses, nil
}

// ClaimCell locks the cell row and flips Available to Booked. The
// unique cell index catches the race where two claimers both observe
// the row as absent and insert concurrently.
func (store *Store) ClaimCell(ctx context.Context, cell booking.Cell) error {
	var row FieldSchedule
	err := store.withRowLock(ctx).
		Where("field_id = ? AND date = ? AND slot_id = ?", cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = FieldSchedule{
			FieldID: cell.FieldID.String(),
			Date:    cell.Date.String(),
			SlotID:  cell.SlotID.Int(),
			Status:  booking.CellBooked.String(),
		}
		createErr := store.db.WithContext(ctx).Create(&row).Error
		if isCellConflict(createErr) {
			return wrapStoreError(errorSubjectCell, errorCodeClaim, booking.ErrCellConflict)
		}
		if createErr != nil {
			return wrapStoreError(errorSubjectCell, errorCodeCreate, createErr)
		}
		return nil
	}
	if err != nil {
		return wrapStoreError(errorSubjectCell, errorCodeGet, err)
	}
	if row.Status != booking.CellAvailable.String() {
		return wrapStoreError(errorSubjectCell, errorCodeClaim, booking.ErrCellConflict)
	}
	result := store.db.WithContext(ctx).
		Model(&FieldSchedule{}).
		Where("schedule_id = ? AND status = ?", row.ScheduleID, booking.CellAvailable.String()).
		Update("status", booking.CellBooked.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectCell, errorCodeClaim, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCell, errorCodeClaim, booking.ErrCellConflict)
	}
	return nil
}

func (store *Store) ReleaseCell(ctx context.Context, cell booking.Cell) error {
	err := store.db.WithContext(ctx).
		Model(&FieldSchedule{}).
		Where("field_id = ? AND date = ? AND slot_id = ? AND status = ?",
			cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int(), booking.CellBooked.String()).
		Update("status", booking.CellAvailable.String()).Error
	if err != nil {
		return wrapStoreError(errorSubjectCell, errorCodeRelease, err)
	}
	return nil
}

func (store *Store) SetCellMaintenance(ctx context.Context, cell booking.Cell, maintenance bool) error {
	var row FieldSchedule
	err := store.withRowLock(ctx).
		Where("field_id = ? AND date = ? AND slot_id = ?", cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if !maintenance {
			return nil
		}
		row = FieldSchedule{
			FieldID: cell.FieldID.String(),
			Date:    cell.Date.String(),
			SlotID:  cell.SlotID.Int(),
			Status:  booking.CellMaintenance.String(),
		}
		if createErr := store.db.WithContext(ctx).Create(&row).Error; createErr != nil {
			if isCellConflict(createErr) {
				return wrapStoreError(errorSubjectCell, errorCodeClaim, booking.ErrCellConflict)
			}
			return wrapStoreError(errorSubjectCell, errorCodeCreate, createErr)
		}
		return nil
	}
	if err != nil {
		return wrapStoreError(errorSubjectCell, errorCodeGet, err)
	}
	if row.Status == booking.CellBooked.String() {
		return wrapStoreError(errorSubjectCell, errorCodeUpdateStatus, booking.ErrInvalidState)
	}
	target := booking.CellAvailable
	if maintenance {
		target = booking.CellMaintenance
	}
	err = store.db.WithContext(ctx).
		Model(&FieldSchedule{}).
		Where("schedule_id = ?", row.ScheduleID).
		Update("status", target.String()).Error
	if err != nil {
		return wrapStoreError(errorSubjectCell, errorCodeUpdateStatus, err)
	}
	return nil
}

func (store *Store) CreateReservation(ctx context.Context, reservation booking.Reservation) error {
	row := reservationRow(reservation)
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetReservation(ctx context.Context, id booking.ReservationID) (booking.Reservation, error) {
	var row Reservation
	err := store.withRowLock(ctx).
		Where("reservation_id = ?", id.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	return mapReservation(row)
}

func (store *Store) UpdateReservationStatus(ctx context.Context, id booking.ReservationID, from booking.BookingStatus, to booking.BookingStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("reservation_id = ? AND status = ?", id.String(), from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, booking.ErrInvalidState)
	}
	return nil
}

func (store *Store) SaveReservation(ctx context.Context, reservation booking.Reservation) error {
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("reservation_id = ?", reservation.ID.String()).
		Updates(map[string]interface{}{
			"status":             reservation.Status.String(),
			"payment_status":     reservation.Payment.String(),
			"remaining_cents":    reservation.RemainingCents.Int64(),
			"confirmed_unix_utc": reservation.ConfirmedUnixUTC,
			"cancelled_unix_utc": reservation.CancelledUnixUTC,
			"cancel_reason":      reservation.CancelReason,
			"cancel_actor":       reservation.CancelActor.String(),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeSave, err)
	}
	return nil
}

func (store *Store) ListExpiredPending(ctx context.Context, nowUnixUTC int64, limit int) ([]booking.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("status = ? AND hold_expires_at > 0 AND hold_expires_at < ?", booking.BookingPending.String(), nowUnixUTC).
		Order("hold_expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapReservations(rows)
}

func (store *Store) ListUserReservations(ctx context.Context, userID booking.UserID, limit int) ([]booking.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapReservations(rows)
}

func (store *Store) CreateCancellation(ctx context.Context, request booking.CancellationRequest) error {
	row := CancellationRequest{
		RequestID:        request.ID.String(),
		ReservationID:    request.ReservationID.String(),
		Actor:            request.Actor.String(),
		Reason:           request.Reason,
		RefundCents:      request.RefundCents.Int64(),
		PenaltyCents:     request.PenaltyCents.Int64(),
		UndoAllowedUntil: request.UndoAllowedUntil,
		State:            request.State.String(),
		CreatedAt:        time.Unix(request.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetCancellation(ctx context.Context, id booking.RequestID) (booking.CancellationRequest, error) {
	var row CancellationRequest
	err := store.withRowLock(ctx).
		Where("request_id = ?", id.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, booking.ErrNotFound)
		}
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	return mapCancellation(row)
}

func (store *Store) UpdateCancellationState(ctx context.Context, id booking.RequestID, from booking.CancellationState, to booking.CancellationState) error {
	result := store.db.WithContext(ctx).
		Model(&CancellationRequest{}).
		Where("request_id = ? AND state = ?", id.String(), from.String()).
		Update("state", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateStatus, booking.ErrInvalidState)
	}
	return nil
}

func (store *Store) ListDueCancellations(ctx context.Context, nowUnixUTC int64, limit int) ([]booking.CancellationRequest, error) {
	var rows []CancellationRequest
	err := store.db.WithContext(ctx).
		Where("state = ? AND undo_allowed_until < ?", booking.CancellationOpen.String(), nowUnixUTC).
		Order("undo_allowed_until ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	requests := make([]booking.CancellationRequest, 0, len(rows))
	for _, row := range rows {
		request, err := mapCancellation(row)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// PriceFor resolves the FieldPrice override first and falls back to
// the field's baseline price.
func (store *Store) PriceFor(ctx context.Context, fieldID booking.FieldID, slotID booking.SlotID) (booking.AmountCents, error) {
	var override FieldPrice
	err := store.db.WithContext(ctx).
		Where("field_id = ? AND slot_id = ?", fieldID.String(), slotID.Int()).
		Take(&override).Error
	if err == nil {
		price, err := booking.NewPositiveAmountCents(override.PriceCents)
		if err != nil {
			return 0, wrapStoreError(errorSubjectPrice, errorCodeInvalid, err)
		}
		return price, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, wrapStoreError(errorSubjectPrice, errorCodeLookup, err)
	}
	field, err := store.GetField(ctx, fieldID)
	if err != nil {
		return 0, err
	}
	return field.BaselineCents, nil
}

func (store *Store) FieldPolicy(ctx context.Context, fieldID booking.FieldID) (booking.CancellationPolicy, error) {
	var row CancellationPolicy
	err := store.db.WithContext(ctx).
		Where("field_id = ?", fieldID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.DefaultPolicy(), nil
	}
	if err != nil {
		return booking.CancellationPolicy{}, wrapStoreError(errorSubjectPolicy, errorCodeLookup, err)
	}
	return booking.CancellationPolicy{
		CancelBeforeHours:       row.CancelBeforeHours,
		RefundRatePercent:       row.RefundRatePercent,
		LateRefundRatePercent:   row.LateRefundRatePercent,
		OwnerPenaltyRatePercent: row.OwnerPenaltyRatePercent,
	}, nil
}

func (store *Store) GetField(ctx context.Context, fieldID booking.FieldID) (booking.Field, error) {
	var row Field
	err := store.db.WithContext(ctx).
		Where("field_id = ?", fieldID.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeGet, booking.ErrNotFound)
		}
		return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeGet, err)
	}
	return mapField(row)
}

// withRowLock adds FOR UPDATE on dialects that support it. sqlite
// serializes writers already.
func (store *Store) withRowLock(ctx context.Context) *gorm.DB {
	db := store.db.WithContext(ctx)
	if store.db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func reservationRow(reservation booking.Reservation) Reservation {
	return Reservation{
		ReservationID:    reservation.ID.String(),
		UserID:           reservation.UserID.String(),
		FieldID:          reservation.Cell.FieldID.String(),
		Date:             reservation.Cell.Date.String(),
		SlotID:           reservation.Cell.SlotID.Int(),
		TotalCents:       reservation.TotalCents.Int64(),
		DepositCents:     reservation.DepositCents.Int64(),
		RemainingCents:   reservation.RemainingCents.Int64(),
		Status:           reservation.Status.String(),
		PaymentStatus:    reservation.Payment.String(),
		OpponentWanted:   reservation.OpponentWanted,
		RecurringGroup:   reservation.RecurringGroup,
		HoldExpiresAt:    reservation.HoldExpiresAt,
		ConfirmedUnixUTC: reservation.ConfirmedUnixUTC,
		CancelledUnixUTC: reservation.CancelledUnixUTC,
		CancelReason:     reservation.CancelReason,
		CancelActor:      reservation.CancelActor.String(),
		Metadata:         datatypesJSON(reservation.MetadataJSON),
		CreatedAt:        time.Unix(reservation.CreatedUnixUTC, 0).UTC(),
	}
}

func mapReservation(row Reservation) (booking.Reservation, error) {
	reservationID, err := booking.NewReservationID(row.ReservationID)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	userID, err := booking.NewUserID(row.UserID)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	fieldID, err := booking.NewFieldID(row.FieldID)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	date, err := booking.NewDate(row.Date)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	slotID, err := booking.NewSlotID(row.SlotID)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	status, err := booking.ParseBookingStatus(row.Status)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	payment, err := booking.ParsePaymentStatus(row.PaymentStatus)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	var cancelActor booking.ActorRole
	if row.CancelActor != "" {
		cancelActor, err = booking.ParseActorRole(row.CancelActor)
		if err != nil {
			return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
	}
	return booking.Reservation{
		ID:               reservationID,
		UserID:           userID,
		Cell:             booking.Cell{FieldID: fieldID, Date: date, SlotID: slotID},
		TotalCents:       booking.AmountCents(row.TotalCents),
		DepositCents:     booking.AmountCents(row.DepositCents),
		RemainingCents:   booking.AmountCents(row.RemainingCents),
		Status:           status,
		Payment:          payment,
		OpponentWanted:   row.OpponentWanted,
		RecurringGroup:   row.RecurringGroup,
		HoldExpiresAt:    row.HoldExpiresAt,
		CreatedUnixUTC:   row.CreatedAt.Unix(),
		ConfirmedUnixUTC: row.ConfirmedUnixUTC,
		CancelledUnixUTC: row.CancelledUnixUTC,
		CancelReason:     row.CancelReason,
		CancelActor:      cancelActor,
		MetadataJSON:     string(row.Metadata),
	}, nil
}

func mapReservations(rows []Reservation) ([]booking.Reservation, error) {
	reservations := make([]booking.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func mapCancellation(row CancellationRequest) (booking.CancellationRequest, error) {
	requestID, err := booking.NewRequestID(row.RequestID)
	if err != nil {
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	reservationID, err := booking.NewReservationID(row.ReservationID)
	if err != nil {
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	actor, err := booking.ParseActorRole(row.Actor)
	if err != nil {
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	state, err := booking.ParseCancellationState(row.State)
	if err != nil {
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	return booking.CancellationRequest{
		ID:               requestID,
		ReservationID:    reservationID,
		Actor:            actor,
		Reason:           row.Reason,
		RefundCents:      booking.AmountCents(row.RefundCents),
		PenaltyCents:     booking.AmountCents(row.PenaltyCents),
		UndoAllowedUntil: row.UndoAllowedUntil,
		State:            state,
		CreatedUnixUTC:   row.CreatedAt.Unix(),
	}, nil
}

func mapField(row Field) (booking.Field, error) {
	fieldID, err := booking.NewFieldID(row.FieldID)
	if err != nil {
		return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeInvalid, err)
	}
	baseline, err := booking.NewPositiveAmountCents(row.BaselineCents)
	if err != nil {
		return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeInvalid, err)
	}
	var owner booking.UserID
	if row.OwnerUserID != "" {
		owner, err = booking.NewUserID(row.OwnerUserID)
		if err != nil {
			return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeInvalid, err)
		}
	}
	return booking.Field{
		ID:            fieldID,
		ComplexID:     row.ComplexID,
		FieldType:     row.FieldType,
		BaselineCents: baseline,
		Status:        row.Status,
		OwnerUserID:   owner,
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isCellConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintScheduleCell
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
