package pgstore

import (
	"context"
	"errors"

	"github.com/PitchsideLabs/fieldbook/pkg/booking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintScheduleCell = "idx_field_schedules_cell"
	pgUniqueViolationCode  = "23505"
	errorOperationStore    = "store"
	errorSubjectCell       = "cell"
	errorSubjectField      = "field"
	errorSubjectPrice      = "price"
	errorSubjectPolicy     = "policy"
	errorSubjectRequest    = "cancellation"
	errorSubjectBooking    = "reservation"
	errorSubjectTx         = "transaction"
	errorCodeBegin         = "begin"
	errorCodeClaim         = "claim"
	errorCodeCommit        = "commit"
	errorCodeCreate        = "create"
	errorCodeGet           = "get"
	errorCodeInvalid       = "invalid"
	errorCodeList          = "list"
	errorCodeLookup        = "lookup"
	errorCodeRelease       = "release"
	errorCodeSave          = "save"
	errorCodeUpdateStatus  = "update_status"

	sqlSelectCellStatus = `
		select status from field_schedules
		where field_id = $1 and date = $2 and slot_id = $3
	`

	sqlSelectCellStatusForUpdate = sqlSelectCellStatus + ` for update`

	sqlListCellStatuses = `
		select slot_id, status from field_schedules
		where field_id = $1 and date = $2
	`

	sqlInsertCell = `
		insert into field_schedules(schedule_id, field_id, date, slot_id, status, updated_at)
		values (gen_random_uuid(), $1, $2, $3, $4, now())
	`

	sqlUpdateCellStatus = `
		update field_schedules
		set status = $5, updated_at = now()
		where field_id = $1 and date = $2 and slot_id = $3 and status = $4
	`

	sqlSetCellStatus = `
		update field_schedules
		set status = $4, updated_at = now()
		where field_id = $1 and date = $2 and slot_id = $3
	`

	sqlInsertReservation = `
		insert into reservations(
			reservation_id, user_id, field_id, date, slot_id,
			total_cents, deposit_cents, remaining_cents,
			status, payment_status, opponent_wanted, recurring_group,
			hold_expires_at, confirmed_unix_utc, cancelled_unix_utc,
			cancel_reason, cancel_actor, metadata, created_at, updated_at
		)
		values (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			coalesce(nullif($18,''),'{}')::jsonb,
			to_timestamp($19), now()
		)
	`

	sqlReservationColumns = `
		reservation_id, user_id, field_id, date, slot_id,
		total_cents, deposit_cents, remaining_cents,
		status, payment_status, opponent_wanted, coalesce(recurring_group,''),
		hold_expires_at, confirmed_unix_utc, cancelled_unix_utc,
		coalesce(cancel_reason,''), coalesce(cancel_actor,''),
		coalesce(metadata::text,'{}'),
		extract(epoch from created_at)::bigint
	`

	sqlSelectReservation = `
		select ` + sqlReservationColumns + `
		from reservations
		where reservation_id = $1
		for update
	`

	sqlUpdateReservationStatus = `
		update reservations
		set status = $3, updated_at = now()
		where reservation_id = $1 and status = $2
	`

	sqlSaveReservation = `
		update reservations
		set status = $2, payment_status = $3, remaining_cents = $4,
			confirmed_unix_utc = $5, cancelled_unix_utc = $6,
			cancel_reason = $7, cancel_actor = $8, updated_at = now()
		where reservation_id = $1
	`

	sqlListExpiredPending = `
		select ` + sqlReservationColumns + `
		from reservations
		where status = $1 and hold_expires_at > 0 and hold_expires_at < $2
		order by hold_expires_at asc
		limit $3
	`

	sqlListUserReservations = `
		select ` + sqlReservationColumns + `
		from reservations
		where user_id = $1
		order by created_at desc
		limit $2
	`

	sqlInsertCancellation = `
		insert into cancellation_requests(
			request_id, reservation_id, actor, reason,
			refund_cents, penalty_cents, undo_allowed_until, state,
			created_at, updated_at
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, to_timestamp($9), now())
	`

	sqlCancellationColumns = `
		request_id, reservation_id, actor, coalesce(reason,''),
		refund_cents, penalty_cents, undo_allowed_until, state,
		extract(epoch from created_at)::bigint
	`

	sqlSelectCancellation = `
		select ` + sqlCancellationColumns + `
		from cancellation_requests
		where request_id = $1
		for update
	`

	sqlUpdateCancellationState = `
		update cancellation_requests
		set state = $3, updated_at = now()
		where request_id = $1 and state = $2
	`

	sqlListDueCancellations = `
		select ` + sqlCancellationColumns + `
		from cancellation_requests
		where state = $1 and undo_allowed_until < $2
		order by undo_allowed_until asc
		limit $3
	`

	sqlSelectPriceOverride = `
		select price_cents from field_prices
		where field_id = $1 and slot_id = $2
	`

	sqlSelectPolicy = `
		select cancel_before_hours, refund_rate_percent, late_refund_rate_percent, owner_penalty_rate_percent
		from cancellation_policies
		where field_id = $1
	`

	sqlSelectField = `
		select field_id, coalesce(complex_id,''), field_type, baseline_cents, status, coalesce(owner_user_id,'')
		from fields
		where field_id = $1
	`
)

// dbtx is the subset of pgx shared by pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements booking.Store on postgres. Outside WithTx the
// methods run autocommit on the pool; inside WithTx they share a
// single transaction.
type Store struct {
	pool *pgxpool.Pool
	db   dbtx
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeBegin, err)
	}
	transactionStore := &Store{db: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) GetCellStatus(ctx context.Context, cell booking.Cell) (booking.CellStatus, error) {
	var statusValue string
	err := store.db.QueryRow(ctx, sqlSelectCellStatus, cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int()).Scan(&statusValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.CellAvailable, nil
	}
	if err != nil {
		return "", wrapStoreError(errorSubjectCell, errorCodeGet, err)
	}
	status, err := booking.ParseCellStatus(statusValue)
	if err != nil {
		return "", wrapStoreError(errorSubjectCell, errorCodeInvalid, err)
	}
	return status, nil
}

func (store *Store) ListCellStatuses(ctx context.Context, fieldID booking.FieldID, date booking.Date) (map[booking.SlotID]booking.CellStatus, error) {
	rows, err := store.db.Query(ctx, sqlListCellStatuses, fieldID.String(), date.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectCell, errorCodeList, err)
	}
	defer rows.Close()
	statuses := make(map[booking.SlotID]booking.CellStatus)
	for rows.Next() {
		var slotValue int
		var statusValue string
		if err := rows.Scan(&slotValue, &statusValue); err != nil {
			return nil, wrapStoreError(errorSubjectCell, errorCodeList, err)
		}
		slotID, err := booking.NewSlotID(slotValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCell, errorCodeInvalid, err)
		}
		status, err := booking.ParseCellStatus(statusValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCell, errorCodeInvalid, err)
		}
		statuses[slotID] = status
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectCell, errorCodeList, err)
	}
	return statuses, nil
}

func (store *Store) ClaimCell(ctx context.Context, cell booking.Cell) error {
	var statusValue string
	err := store.db.QueryRow(ctx, sqlSelectCellStatusForUpdate, cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int()).Scan(&statusValue)
	if errors.Is(err, pgx.ErrNoRows) {
		_, insertErr := store.db.Exec(ctx, sqlInsertCell,
			cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int(), booking.CellBooked.String())
		if isCellConflict(insertErr) {
			return wrapStoreError(errorSubjectCell, errorCodeClaim, booking.ErrCellConflict)
		}
		if insertErr != nil {
			return wrapStoreError(errorSubjectCell, errorCodeCreate, insertErr)
		}
		return nil
	}
	if err != nil {
		return wrapStoreError(errorSubjectCell, errorCodeGet, err)
	}
	if statusValue != booking.CellAvailable.String() {
		return wrapStoreError(errorSubjectCell, errorCodeClaim, booking.ErrCellConflict)
	}
	tag, err := store.db.Exec(ctx, sqlUpdateCellStatus,
		cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int(),
		booking.CellAvailable.String(), booking.CellBooked.String())
	if err != nil {
		return wrapStoreError(errorSubjectCell, errorCodeClaim, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectCell, errorCodeClaim, booking.ErrCellConflict)
	}
	return nil
}

func (store *Store) ReleaseCell(ctx context.Context, cell booking.Cell) error {
	_, err := store.db.Exec(ctx, sqlUpdateCellStatus,
		cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int(),
		booking.CellBooked.String(), booking.CellAvailable.String())
	if err != nil {
		return wrapStoreError(errorSubjectCell, errorCodeRelease, err)
	}
	return nil
}

func (store *Store) SetCellMaintenance(ctx context.Context, cell booking.Cell, maintenance bool) error {
	var statusValue string
	err := store.db.QueryRow(ctx, sqlSelectCellStatusForUpdate, cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int()).Scan(&statusValue)
	if errors.Is(err, pgx.ErrNoRows) {
		if !maintenance {
			return nil
		}
		_, insertErr := store.db.Exec(ctx, sqlInsertCell,
			cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int(), booking.CellMaintenance.String())
		if isCellConflict(insertErr) {
			return wrapStoreError(errorSubjectCell, errorCodeClaim, booking.ErrCellConflict)
		}
		if insertErr != nil {
			return wrapStoreError(errorSubjectCell, errorCodeCreate, insertErr)
		}
		return nil
	}
	if err != nil {
		return wrapStoreError(errorSubjectCell, errorCodeGet, err)
	}
	if statusValue == booking.CellBooked.String() {
		return wrapStoreError(errorSubjectCell, errorCodeUpdateStatus, booking.ErrInvalidState)
	}
	target := booking.CellAvailable
	if maintenance {
		target = booking.CellMaintenance
	}
	_, err = store.db.Exec(ctx, sqlSetCellStatus,
		cell.FieldID.String(), cell.Date.String(), cell.SlotID.Int(), target.String())
	if err != nil {
		return wrapStoreError(errorSubjectCell, errorCodeUpdateStatus, err)
	}
	return nil
}

func (store *Store) CreateReservation(ctx context.Context, reservation booking.Reservation) error {
	_, err := store.db.Exec(ctx, sqlInsertReservation,
		reservation.ID.String(),
		reservation.UserID.String(),
		reservation.Cell.FieldID.String(),
		reservation.Cell.Date.String(),
		reservation.Cell.SlotID.Int(),
		reservation.TotalCents.Int64(),
		reservation.DepositCents.Int64(),
		reservation.RemainingCents.Int64(),
		reservation.Status.String(),
		reservation.Payment.String(),
		reservation.OpponentWanted,
		reservation.RecurringGroup,
		reservation.HoldExpiresAt,
		reservation.ConfirmedUnixUTC,
		reservation.CancelledUnixUTC,
		reservation.CancelReason,
		reservation.CancelActor.String(),
		reservation.MetadataJSON,
		reservation.CreatedUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetReservation(ctx context.Context, id booking.ReservationID) (booking.Reservation, error) {
	row := store.db.QueryRow(ctx, sqlSelectReservation, id.String())
	reservation, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Reservation{}, err
	}
	return reservation, nil
}

func (store *Store) UpdateReservationStatus(ctx context.Context, id booking.ReservationID, from booking.BookingStatus, to booking.BookingStatus) error {
	tag, err := store.db.Exec(ctx, sqlUpdateReservationStatus, id.String(), from.String(), to.String())
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, booking.ErrInvalidState)
	}
	return nil
}

func (store *Store) SaveReservation(ctx context.Context, reservation booking.Reservation) error {
	_, err := store.db.Exec(ctx, sqlSaveReservation,
		reservation.ID.String(),
		reservation.Status.String(),
		reservation.Payment.String(),
		reservation.RemainingCents.Int64(),
		reservation.ConfirmedUnixUTC,
		reservation.CancelledUnixUTC,
		reservation.CancelReason,
		reservation.CancelActor.String(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeSave, err)
	}
	return nil
}

func (store *Store) ListExpiredPending(ctx context.Context, nowUnixUTC int64, limit int) ([]booking.Reservation, error) {
	rows, err := store.db.Query(ctx, sqlListExpiredPending, booking.BookingPending.String(), nowUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return collectReservations(rows)
}

func (store *Store) ListUserReservations(ctx context.Context, userID booking.UserID, limit int) ([]booking.Reservation, error) {
	rows, err := store.db.Query(ctx, sqlListUserReservations, userID.String(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return collectReservations(rows)
}

func (store *Store) CreateCancellation(ctx context.Context, request booking.CancellationRequest) error {
	_, err := store.db.Exec(ctx, sqlInsertCancellation,
		request.ID.String(),
		request.ReservationID.String(),
		request.Actor.String(),
		request.Reason,
		request.RefundCents.Int64(),
		request.PenaltyCents.Int64(),
		request.UndoAllowedUntil,
		request.State.String(),
		request.CreatedUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetCancellation(ctx context.Context, id booking.RequestID) (booking.CancellationRequest, error) {
	row := store.db.QueryRow(ctx, sqlSelectCancellation, id.String())
	request, err := scanCancellation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.CancellationRequest{}, err
	}
	return request, nil
}

func (store *Store) UpdateCancellationState(ctx context.Context, id booking.RequestID, from booking.CancellationState, to booking.CancellationState) error {
	tag, err := store.db.Exec(ctx, sqlUpdateCancellationState, id.String(), from.String(), to.String())
	if err != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateStatus, booking.ErrInvalidState)
	}
	return nil
}

func (store *Store) ListDueCancellations(ctx context.Context, nowUnixUTC int64, limit int) ([]booking.CancellationRequest, error) {
	rows, err := store.db.Query(ctx, sqlListDueCancellations, booking.CancellationOpen.String(), nowUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	defer rows.Close()
	requests := make([]booking.CancellationRequest, 0)
	for rows.Next() {
		request, err := scanCancellation(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	return requests, nil
}

func (store *Store) PriceFor(ctx context.Context, fieldID booking.FieldID, slotID booking.SlotID) (booking.AmountCents, error) {
	var priceValue int64
	err := store.db.QueryRow(ctx, sqlSelectPriceOverride, fieldID.String(), slotID.Int()).Scan(&priceValue)
	if err == nil {
		price, err := booking.NewPositiveAmountCents(priceValue)
		if err != nil {
			return 0, wrapStoreError(errorSubjectPrice, errorCodeInvalid, err)
		}
		return price, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapStoreError(errorSubjectPrice, errorCodeLookup, err)
	}
	field, err := store.GetField(ctx, fieldID)
	if err != nil {
		return 0, err
	}
	return field.BaselineCents, nil
}

func (store *Store) FieldPolicy(ctx context.Context, fieldID booking.FieldID) (booking.CancellationPolicy, error) {
	var policy booking.CancellationPolicy
	err := store.db.QueryRow(ctx, sqlSelectPolicy, fieldID.String()).Scan(
		&policy.CancelBeforeHours,
		&policy.RefundRatePercent,
		&policy.LateRefundRatePercent,
		&policy.OwnerPenaltyRatePercent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.DefaultPolicy(), nil
	}
	if err != nil {
		return booking.CancellationPolicy{}, wrapStoreError(errorSubjectPolicy, errorCodeLookup, err)
	}
	return policy, nil
}

func (store *Store) GetField(ctx context.Context, fieldID booking.FieldID) (booking.Field, error) {
	var fieldValue, complexValue, typeValue, statusValue, ownerValue string
	var baselineValue int64
	err := store.db.QueryRow(ctx, sqlSelectField, fieldID.String()).Scan(
		&fieldValue, &complexValue, &typeValue, &baselineValue, &statusValue, &ownerValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeGet, err)
	}
	id, err := booking.NewFieldID(fieldValue)
	if err != nil {
		return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeInvalid, err)
	}
	baseline, err := booking.NewPositiveAmountCents(baselineValue)
	if err != nil {
		return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeInvalid, err)
	}
	var owner booking.UserID
	if ownerValue != "" {
		owner, err = booking.NewUserID(ownerValue)
		if err != nil {
			return booking.Field{}, wrapStoreError(errorSubjectField, errorCodeInvalid, err)
		}
	}
	return booking.Field{
		ID:            id,
		ComplexID:     complexValue,
		FieldType:     typeValue,
		BaselineCents: baseline,
		Status:        statusValue,
		OwnerUserID:   owner,
	}, nil
}

func scanReservation(row pgx.Row) (booking.Reservation, error) {
	var (
		idValue, userValue, fieldValue, dateValue        string
		statusValue, paymentValue, groupValue            string
		reasonValue, actorValue, metadataValue           string
		slotValue                                        int
		totalValue, depositValue, remainingValue         int64
		holdExpiresValue, confirmedValue, cancelledValue int64
		createdValue                                     int64
		opponentWanted                                   bool
	)
	err := row.Scan(
		&idValue, &userValue, &fieldValue, &dateValue, &slotValue,
		&totalValue, &depositValue, &remainingValue,
		&statusValue, &paymentValue, &opponentWanted, &groupValue,
		&holdExpiresValue, &confirmedValue, &cancelledValue,
		&reasonValue, &actorValue, &metadataValue, &createdValue,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Reservation{}, err
		}
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	id, err := booking.NewReservationID(idValue)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	userID, err := booking.NewUserID(userValue)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	fieldID, err := booking.NewFieldID(fieldValue)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	date, err := booking.NewDate(dateValue)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	slotID, err := booking.NewSlotID(slotValue)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	status, err := booking.ParseBookingStatus(statusValue)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	payment, err := booking.ParsePaymentStatus(paymentValue)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	var cancelActor booking.ActorRole
	if actorValue != "" {
		cancelActor, err = booking.ParseActorRole(actorValue)
		if err != nil {
			return booking.Reservation{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
	}
	return booking.Reservation{
		ID:               id,
		UserID:           userID,
		Cell:             booking.Cell{FieldID: fieldID, Date: date, SlotID: slotID},
		TotalCents:       booking.AmountCents(totalValue),
		DepositCents:     booking.AmountCents(depositValue),
		RemainingCents:   booking.AmountCents(remainingValue),
		Status:           status,
		Payment:          payment,
		OpponentWanted:   opponentWanted,
		RecurringGroup:   groupValue,
		HoldExpiresAt:    holdExpiresValue,
		CreatedUnixUTC:   createdValue,
		ConfirmedUnixUTC: confirmedValue,
		CancelledUnixUTC: cancelledValue,
		CancelReason:     reasonValue,
		CancelActor:      cancelActor,
		MetadataJSON:     metadataValue,
	}, nil
}

func collectReservations(rows pgx.Rows) ([]booking.Reservation, error) {
	defer rows.Close()
	reservations := make([]booking.Reservation, 0)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return reservations, nil
}

func scanCancellation(row pgx.Row) (booking.CancellationRequest, error) {
	var (
		idValue, reservationValue, actorValue string
		reasonValue, stateValue               string
		refundValue, penaltyValue             int64
		undoUntilValue, createdValue          int64
	)
	err := row.Scan(
		&idValue, &reservationValue, &actorValue, &reasonValue,
		&refundValue, &penaltyValue, &undoUntilValue, &stateValue, &createdValue,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.CancellationRequest{}, err
		}
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	id, err := booking.NewRequestID(idValue)
	if err != nil {
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	reservationID, err := booking.NewReservationID(reservationValue)
	if err != nil {
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	actor, err := booking.ParseActorRole(actorValue)
	if err != nil {
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	state, err := booking.ParseCancellationState(stateValue)
	if err != nil {
		return booking.CancellationRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	return booking.CancellationRequest{
		ID:               id,
		ReservationID:    reservationID,
		Actor:            actor,
		Reason:           reasonValue,
		RefundCents:      booking.AmountCents(refundValue),
		PenaltyCents:     booking.AmountCents(penaltyValue),
		UndoAllowedUntil: undoUntilValue,
		State:            state,
		CreatedUnixUTC:   createdValue,
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func isCellConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintScheduleCell
	}
	return false
}
