package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PitchsideLabs/fieldbook/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// Run boots the HTTP API over an already wired engine.
func Run(ctx context.Context, cfg Config, engine *booking.Engine, gateway booking.PaymentGateway, logger *zap.Logger) error {
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	handler := &httpHandler{
		logger:  logger,
		engine:  engine,
		gateway: gateway,
		cfg:     cfg,
	}

	router := setupRouter(cfg, handler, sessionValidator)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fieldbook api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Payment confirmations arrive from the gateway, not the browser
	// session, so the route stays outside the session group.
	router.POST("/payments/confirm", handler.handlePaymentConfirm)

	api := router.Group("/api")
	api.Use(validator.GinMiddleware("auth_claims"))

	api.GET("/fields/:field_id/availability", handler.handleAvailability)
	api.POST("/fields/:field_id/maintenance", handler.handleMaintenance)
	api.POST("/holds", handler.handleCreateHold)
	api.POST("/recurring/preview", handler.handleRecurringPreview)
	api.POST("/recurring", handler.handleRecurringCommit)
	api.GET("/reservations", handler.handleListReservations)
	api.POST("/reservations/:reservation_id/cancel", handler.handleCancel)
	api.POST("/cancellations/:request_id/undo", handler.handleUndo)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	engine  *booking.Engine
	gateway booking.PaymentGateway
	cfg     Config
}

type holdRequest struct {
	FieldID        string         `json:"field_id"`
	Date           string         `json:"date"`
	SlotID         int            `json:"slot_id"`
	OpponentWanted bool           `json:"opponent_wanted"`
	Metadata       map[string]any `json:"metadata"`
}

type recurringRequest struct {
	FieldID        string   `json:"field_id"`
	SlotID         int      `json:"slot_id"`
	StartDate      string   `json:"start_date"`
	Weekdays       []string `json:"weekdays"`
	Weeks          int      `json:"weeks"`
	OpponentWanted bool     `json:"opponent_wanted"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type paymentConfirmRequest struct {
	PaymentRef string `json:"payment_ref"`
}

type maintenanceRequest struct {
	Date        string `json:"date"`
	SlotID      int    `json:"slot_id"`
	Maintenance bool   `json:"maintenance"`
}

func (handler *httpHandler) handleAvailability(ctx *gin.Context) {
	fieldID, err := booking.NewFieldID(ctx.Param("field_id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	date, err := booking.NewDate(ctx.Query("date"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	// A slot_id query narrows the lookup to one cell and reports its
	// status, so callers can tell a booked slot from maintenance.
	if rawSlot := ctx.Query("slot_id"); rawSlot != "" {
		slotValue, convErr := strconv.Atoi(rawSlot)
		if convErr != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "slot_id must be an integer"))
			return
		}
		slotID, slotErr := booking.NewSlotID(slotValue)
		if slotErr != nil {
			respondError(ctx, slotErr)
			return
		}
		cell := booking.Cell{FieldID: fieldID, Date: date, SlotID: slotID}
		status, statusErr := handler.engine.Calendar.CellStatus(ctx.Request.Context(), cell)
		if statusErr != nil {
			respondError(ctx, statusErr)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"field_id":  fieldID.String(),
			"date":      date.String(),
			"slot_id":   slotID.Int(),
			"available": status == booking.CellAvailable,
			"status":    status.String(),
		})
		return
	}
	available, err := handler.engine.Calendar.AvailableSlots(ctx.Request.Context(), fieldID, date)
	if err != nil {
		handler.logger.Error("availability lookup failed", zap.Error(err))
		respondError(ctx, err)
		return
	}
	slots := make([]gin.H, 0, len(available))
	for _, slotID := range available {
		slot, slotErr := booking.SlotByID(slotID)
		if slotErr != nil {
			respondError(ctx, slotErr)
			return
		}
		slots = append(slots, gin.H{
			"slot_id": slot.ID.Int(),
			"start":   slot.Start,
			"end":     slot.End,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"field_id": fieldID.String(),
		"date":     date.String(),
		"slots":    slots,
	})
}

func (handler *httpHandler) handleMaintenance(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	if !hasManagementRole(claims) {
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "owner or admin role required"))
		return
	}
	var request maintenanceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	cell, err := parseCell(ctx.Param("field_id"), request.Date, request.SlotID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if err := handler.engine.Calendar.SetMaintenance(ctx.Request.Context(), cell, request.Maintenance); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleCreateHold(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request holdRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	cell, err := parseCell(request.FieldID, request.Date, request.SlotID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	userID, err := booking.NewUserID(claims.GetUserID())
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx := ctx.Request.Context()
	price, err := handler.engine.Holds.Quote(requestCtx, cell.FieldID, cell.SlotID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	hold, err := handler.engine.Holds.CreateHold(requestCtx, booking.HoldInput{
		Cell:           cell,
		UserID:         userID,
		AmountCents:    price,
		OpponentWanted: request.OpponentWanted,
		MetadataJSON:   marshalMetadata(request.Metadata),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	paymentRef, err := handler.gateway.InitiatePayment(requestCtx, hold.DepositCents, hold.ReservationID)
	if err != nil {
		handler.logger.Error("payment initiation failed", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse("payment_error", "payment initiation failed"))
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"reservation_id": hold.ReservationID.String(),
		"field_id":       hold.Cell.FieldID.String(),
		"date":           hold.Cell.Date.String(),
		"slot_id":        hold.Cell.SlotID.Int(),
		"total_cents":    hold.TotalCents.Int64(),
		"deposit_cents":  hold.DepositCents.Int64(),
		"expires_at":     hold.ExpiresAtUnixUTC,
		"payment_ref":    paymentRef,
	})
}

func (handler *httpHandler) handlePaymentConfirm(ctx *gin.Context) {
	var request paymentConfirmRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PaymentRef) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "payment_ref is required"))
		return
	}
	requestCtx := ctx.Request.Context()
	reservationID, err := handler.gateway.ResolvePaymentRef(requestCtx, request.PaymentRef)
	if err != nil {
		respondError(ctx, err)
		return
	}
	reservation, err := handler.engine.Holds.ConfirmPayment(requestCtx, reservationID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, reservationPayload(reservation))
}

func (handler *httpHandler) handleRecurringPreview(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	request, fieldID, slotID, start, weekdays, err := bindRecurring(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx := ctx.Request.Context()
	dates, err := booking.ExpandWeekly(start, weekdays, request.Weeks)
	if err != nil {
		respondError(ctx, err)
		return
	}
	preview, err := handler.engine.Scheduler.Preview(requestCtx, fieldID, slotID, dates)
	if err != nil {
		respondError(ctx, err)
		return
	}
	suggestions, err := handler.engine.Scheduler.SuggestWeekdays(requestCtx, fieldID, slotID, start, weekdays, request.Weeks)
	if err != nil {
		respondError(ctx, err)
		return
	}
	sessions := make([]gin.H, 0, len(preview.Sessions))
	for _, session := range preview.Sessions {
		sessions = append(sessions, gin.H{
			"date":        session.Date.String(),
			"status":      session.Status.String(),
			"price_cents": session.PriceCents.Int64(),
		})
	}
	suggestionPayload := make([]gin.H, 0, len(suggestions))
	for _, suggestion := range suggestions {
		suggestionPayload = append(suggestionPayload, gin.H{
			"weekday":            strings.ToLower(suggestion.Weekday.String()),
			"availability_ratio": suggestion.Ratio,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"sessions":         sessions,
		"conflicts":        conflictPayload(preview.Conflicts),
		"subtotal_cents":   preview.SubtotalCents.Int64(),
		"discount_percent": preview.DiscountPercent,
		"total_cents":      preview.TotalCents.Int64(),
		"suggestions":      suggestionPayload,
	})
}

func (handler *httpHandler) handleRecurringCommit(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	request, fieldID, slotID, start, weekdays, err := bindRecurring(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	userID, err := booking.NewUserID(claims.GetUserID())
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx := ctx.Request.Context()
	dates, err := booking.ExpandWeekly(start, weekdays, request.Weeks)
	if err != nil {
		respondError(ctx, err)
		return
	}
	result, err := handler.engine.Scheduler.Commit(requestCtx, fieldID, slotID, userID, dates, request.OpponentWanted)
	if err != nil {
		respondError(ctx, err)
		return
	}
	created := make([]gin.H, 0, len(result.Created))
	for _, hold := range result.Created {
		created = append(created, gin.H{
			"reservation_id": hold.ReservationID.String(),
			"date":           hold.Cell.Date.String(),
			"total_cents":    hold.TotalCents.Int64(),
			"deposit_cents":  hold.DepositCents.Int64(),
			"expires_at":     hold.ExpiresAtUnixUTC,
		})
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"group_id":          result.GroupID,
		"created":           created,
		"conflicts":         conflictPayload(result.Conflicts),
		"discount_percent":  result.DiscountPercent,
		"per_session_cents": result.PerSessionCents.Int64(),
	})
}

func (handler *httpHandler) handleListReservations(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	userID, err := booking.NewUserID(claims.GetUserID())
	if err != nil {
		respondError(ctx, err)
		return
	}
	reservations, err := handler.engine.Ledger.ListForUser(ctx.Request.Context(), userID, listHistoryLimit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(reservations))
	for _, reservation := range reservations {
		payload = append(payload, reservationPayload(reservation))
	}
	ctx.JSON(http.StatusOK, gin.H{"reservations": payload})
}

func (handler *httpHandler) handleCancel(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	reservationID, err := booking.NewReservationID(ctx.Param("reservation_id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request cancelRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	cancellation, err := handler.engine.Cancellations.Request(ctx.Request.Context(), reservationID, actorFromClaims(claims), request.Reason)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"request_id":         cancellation.ID.String(),
		"reservation_id":     cancellation.ReservationID.String(),
		"refund_cents":       cancellation.RefundCents.Int64(),
		"penalty_cents":      cancellation.PenaltyCents.Int64(),
		"undo_allowed_until": cancellation.UndoAllowedUntil,
		"state":              cancellation.State.String(),
	})
}

func (handler *httpHandler) handleUndo(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	requestID, err := booking.NewRequestID(ctx.Param("request_id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	reservation, err := handler.engine.Cancellations.Undo(ctx.Request.Context(), requestID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, reservationPayload(reservation))
}

func bindRecurring(ctx *gin.Context) (recurringRequest, booking.FieldID, booking.SlotID, booking.Date, []time.Weekday, error) {
	var request recurringRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return request, booking.FieldID{}, 0, booking.Date{}, nil, fmt.Errorf("%w: expected JSON body", booking.ErrValidation)
	}
	fieldID, err := booking.NewFieldID(request.FieldID)
	if err != nil {
		return request, booking.FieldID{}, 0, booking.Date{}, nil, err
	}
	slotID, err := booking.NewSlotID(request.SlotID)
	if err != nil {
		return request, booking.FieldID{}, 0, booking.Date{}, nil, err
	}
	start, err := booking.NewDate(request.StartDate)
	if err != nil {
		return request, booking.FieldID{}, 0, booking.Date{}, nil, err
	}
	weekdays, err := parseWeekdays(request.Weekdays)
	if err != nil {
		return request, booking.FieldID{}, 0, booking.Date{}, nil, err
	}
	return request, fieldID, slotID, start, weekdays, nil
}

func parseCell(fieldValue string, dateValue string, slotValue int) (booking.Cell, error) {
	fieldID, err := booking.NewFieldID(fieldValue)
	if err != nil {
		return booking.Cell{}, err
	}
	date, err := booking.NewDate(dateValue)
	if err != nil {
		return booking.Cell{}, err
	}
	slotID, err := booking.NewSlotID(slotValue)
	if err != nil {
		return booking.Cell{}, err
	}
	return booking.Cell{FieldID: fieldID, Date: date, SlotID: slotID}, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekdays(raw []string) ([]time.Weekday, error) {
	weekdays := make([]time.Weekday, 0, len(raw))
	for _, name := range raw {
		weekday, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", booking.ErrValidation, name)
		}
		weekdays = append(weekdays, weekday)
	}
	return weekdays, nil
}

func reservationPayload(reservation booking.Reservation) gin.H {
	return gin.H{
		"reservation_id":  reservation.ID.String(),
		"field_id":        reservation.Cell.FieldID.String(),
		"date":            reservation.Cell.Date.String(),
		"slot_id":         reservation.Cell.SlotID.Int(),
		"total_cents":     reservation.TotalCents.Int64(),
		"deposit_cents":   reservation.DepositCents.Int64(),
		"remaining_cents": reservation.RemainingCents.Int64(),
		"status":          reservation.Status.String(),
		"payment_status":  reservation.Payment.String(),
		"opponent_wanted": reservation.OpponentWanted,
		"recurring_group": reservation.RecurringGroup,
		"hold_expires_at": reservation.HoldExpiresAt,
	}
}

func conflictPayload(conflicts []booking.DateConflict) []gin.H {
	payload := make([]gin.H, 0, len(conflicts))
	for _, conflict := range conflicts {
		payload = append(payload, gin.H{
			"date":   conflict.Date.String(),
			"reason": conflict.Reason,
		})
	}
	return payload
}

func actorFromClaims(claims *sessionvalidator.Claims) booking.ActorRole {
	for _, role := range claims.GetUserRoles() {
		switch strings.ToLower(role) {
		case "owner":
			return booking.RoleOwner
		case "admin":
			return booking.RoleAdmin
		}
	}
	return booking.RolePlayer
}

func hasManagementRole(claims *sessionvalidator.Claims) bool {
	actor := actorFromClaims(claims)
	return actor == booking.RoleOwner || actor == booking.RoleAdmin
}

func marshalMetadata(metadata any) string {
	if metadata == nil {
		return "{}"
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get("auth_claims")
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

var validationErrors = []error{
	booking.ErrValidation,
	booking.ErrInvalidFieldID,
	booking.ErrInvalidUserID,
	booking.ErrInvalidReservationID,
	booking.ErrInvalidRequestID,
	booking.ErrInvalidSlotID,
	booking.ErrInvalidDate,
	booking.ErrInvalidAmountCents,
}

func respondError(ctx *gin.Context, err error) {
	for _, validationErr := range validationErrors {
		if errors.Is(err, validationErr) {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
			return
		}
	}
	switch {
	case errors.Is(err, booking.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, booking.ErrCellConflict):
		ctx.JSON(http.StatusConflict, errorResponse("cell_conflict", err.Error()))
	case errors.Is(err, booking.ErrInvalidState):
		ctx.JSON(http.StatusConflict, errorResponse("invalid_state", err.Error()))
	case errors.Is(err, booking.ErrHoldExpired):
		ctx.JSON(http.StatusGone, errorResponse("hold_expired", err.Error()))
	case errors.Is(err, booking.ErrDurationLimitExceeded):
		ctx.JSON(http.StatusUnprocessableEntity, errorResponse("duration_limit_exceeded", err.Error()))
	default:
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "operation failed"))
	}
}
