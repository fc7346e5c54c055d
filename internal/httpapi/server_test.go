package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PitchsideLabs/fieldbook/internal/store/gormstore"
	"github.com/PitchsideLabs/fieldbook/pkg/booking"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testNowUnix = int64(1_800_000_000)

func TestHoldLifecycleOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)
	claims := playerClaims()

	holdCtx, holdRecorder := newTestContext(http.MethodPost, "/api/holds", map[string]any{
		"field_id": "field-1",
		"date":     "2030-06-01",
		"slot_id":  3,
	})
	holdCtx.Set("auth_claims", claims)
	handler.handleCreateHold(holdCtx)
	if holdRecorder.Code != http.StatusCreated {
		t.Fatalf("hold status=%d body=%s", holdRecorder.Code, holdRecorder.Body.String())
	}
	holdBody := decodeBody(t, holdRecorder)
	reservationID, _ := holdBody["reservation_id"].(string)
	paymentRef, _ := holdBody["payment_ref"].(string)
	if reservationID == "" || paymentRef == "" {
		t.Fatalf("missing reservation_id or payment_ref: %v", holdBody)
	}
	if holdBody["deposit_cents"].(float64) != 3000 {
		t.Fatalf("expected deposit 3000, got %v", holdBody["deposit_cents"])
	}

	availabilityCtx, availabilityRecorder := newTestContext(http.MethodGet, "/api/fields/field-1/availability?date=2030-06-01", nil)
	availabilityCtx.Params = gin.Params{{Key: "field_id", Value: "field-1"}}
	handler.handleAvailability(availabilityCtx)
	if availabilityRecorder.Code != http.StatusOK {
		t.Fatalf("availability status=%d body=%s", availabilityRecorder.Code, availabilityRecorder.Body.String())
	}
	slots, _ := decodeBody(t, availabilityRecorder)["slots"].([]any)
	if len(slots) != 10 {
		t.Fatalf("expected 10 open slots after hold, got %d", len(slots))
	}
	for _, entry := range slots {
		slot := entry.(map[string]any)
		if slot["slot_id"].(float64) == 3 {
			t.Fatalf("held slot still listed as available")
		}
	}

	confirmCtx, confirmRecorder := newTestContext(http.MethodPost, "/payments/confirm", map[string]any{"payment_ref": paymentRef})
	handler.handlePaymentConfirm(confirmCtx)
	if confirmRecorder.Code != http.StatusOK {
		t.Fatalf("confirm status=%d body=%s", confirmRecorder.Code, confirmRecorder.Body.String())
	}
	confirmed := decodeBody(t, confirmRecorder)
	if confirmed["status"] != "confirmed" || confirmed["payment_status"] != "paid" {
		t.Fatalf("unexpected confirmation payload: %v", confirmed)
	}

	listCtx, listRecorder := newTestContext(http.MethodGet, "/api/reservations", nil)
	listCtx.Set("auth_claims", claims)
	handler.handleListReservations(listCtx)
	if listRecorder.Code != http.StatusOK {
		t.Fatalf("list status=%d body=%s", listRecorder.Code, listRecorder.Body.String())
	}
	reservations, _ := decodeBody(t, listRecorder)["reservations"].([]any)
	if len(reservations) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(reservations))
	}

	cancelCtx, cancelRecorder := newTestContext(http.MethodPost, "/api/reservations/"+reservationID+"/cancel", map[string]any{"reason": "schedule change"})
	cancelCtx.Params = gin.Params{{Key: "reservation_id", Value: reservationID}}
	cancelCtx.Set("auth_claims", claims)
	handler.handleCancel(cancelCtx)
	if cancelRecorder.Code != http.StatusOK {
		t.Fatalf("cancel status=%d body=%s", cancelRecorder.Code, cancelRecorder.Body.String())
	}
	cancelled := decodeBody(t, cancelRecorder)
	if cancelled["state"] != "open" {
		t.Fatalf("expected open cancellation, got %v", cancelled["state"])
	}
	if cancelled["refund_cents"].(float64) != 3000 {
		t.Fatalf("expected full deposit refund, got %v", cancelled["refund_cents"])
	}
	requestID, _ := cancelled["request_id"].(string)
	if requestID == "" {
		t.Fatalf("missing request_id: %v", cancelled)
	}

	undoCtx, undoRecorder := newTestContext(http.MethodPost, "/api/cancellations/"+requestID+"/undo", nil)
	undoCtx.Params = gin.Params{{Key: "request_id", Value: requestID}}
	undoCtx.Set("auth_claims", claims)
	handler.handleUndo(undoCtx)
	if undoRecorder.Code != http.StatusOK {
		t.Fatalf("undo status=%d body=%s", undoRecorder.Code, undoRecorder.Body.String())
	}
	if restored := decodeBody(t, undoRecorder); restored["status"] != "confirmed" {
		t.Fatalf("expected restored confirmation, got %v", restored["status"])
	}
}

func TestAvailabilityReportsSlotLevelStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)

	holdCtx, holdRecorder := newTestContext(http.MethodPost, "/api/holds", map[string]any{
		"field_id": "field-1",
		"date":     "2030-06-01",
		"slot_id":  3,
	})
	holdCtx.Set("auth_claims", playerClaims())
	handler.handleCreateHold(holdCtx)
	if holdRecorder.Code != http.StatusCreated {
		t.Fatalf("hold status=%d body=%s", holdRecorder.Code, holdRecorder.Body.String())
	}

	maintained, err := parseCell("field-1", "2030-06-01", 4)
	if err != nil {
		t.Fatalf("cell: %v", err)
	}
	if err := handler.engine.Calendar.SetMaintenance(context.Background(), maintained, true); err != nil {
		t.Fatalf("set maintenance: %v", err)
	}

	cases := []struct {
		slot      int
		available bool
		status    string
	}{
		{3, false, "booked"},
		{4, false, "maintenance"},
		{5, true, "available"},
	}
	for _, testCase := range cases {
		target := fmt.Sprintf("/api/fields/field-1/availability?date=2030-06-01&slot_id=%d", testCase.slot)
		ctx, recorder := newTestContext(http.MethodGet, target, nil)
		ctx.Params = gin.Params{{Key: "field_id", Value: "field-1"}}
		handler.handleAvailability(ctx)
		if recorder.Code != http.StatusOK {
			t.Fatalf("slot %d status=%d body=%s", testCase.slot, recorder.Code, recorder.Body.String())
		}
		body := decodeBody(t, recorder)
		if body["available"].(bool) != testCase.available || body["status"] != testCase.status {
			t.Fatalf("slot %d: unexpected payload %v", testCase.slot, body)
		}
	}

	badCtx, badRecorder := newTestContext(http.MethodGet, "/api/fields/field-1/availability?date=2030-06-01&slot_id=42", nil)
	badCtx.Params = gin.Params{{Key: "field_id", Value: "field-1"}}
	handler.handleAvailability(badCtx)
	if badRecorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range slot, got %d", badRecorder.Code)
	}
}

func TestCreateHoldConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)
	payload := map[string]any{"field_id": "field-1", "date": "2030-06-01", "slot_id": 5}

	firstCtx, firstRecorder := newTestContext(http.MethodPost, "/api/holds", payload)
	firstCtx.Set("auth_claims", playerClaims())
	handler.handleCreateHold(firstCtx)
	if firstRecorder.Code != http.StatusCreated {
		t.Fatalf("first hold status=%d body=%s", firstRecorder.Code, firstRecorder.Body.String())
	}

	secondCtx, secondRecorder := newTestContext(http.MethodPost, "/api/holds", payload)
	secondCtx.Set("auth_claims", &sessionvalidator.Claims{UserID: "user-2"})
	handler.handleCreateHold(secondCtx)
	if secondRecorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", secondRecorder.Code, secondRecorder.Body.String())
	}
	if code := errorCode(t, secondRecorder); code != "cell_conflict" {
		t.Fatalf("expected cell_conflict, got %s", code)
	}
}

func TestCreateHoldRequiresSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)

	ctx, recorder := newTestContext(http.MethodPost, "/api/holds", map[string]any{"field_id": "field-1", "date": "2030-06-01", "slot_id": 3})
	handler.handleCreateHold(ctx)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestMaintenanceRequiresManagementRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)

	ctx, recorder := newTestContext(http.MethodPost, "/api/fields/field-1/maintenance", map[string]any{"date": "2030-06-01", "slot_id": 3, "maintenance": true})
	ctx.Params = gin.Params{{Key: "field_id", Value: "field-1"}}
	ctx.Set("auth_claims", playerClaims())
	handler.handleMaintenance(ctx)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for player, got %d", recorder.Code)
	}
}

func TestPaymentConfirmUnknownReference(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)

	ctx, recorder := newTestContext(http.MethodPost, "/payments/confirm", map[string]any{"payment_ref": "does-not-exist"})
	handler.handlePaymentConfirm(ctx)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestRecurringCommitCreatesGroup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(t)

	ctx, recorder := newTestContext(http.MethodPost, "/api/recurring", map[string]any{
		"field_id":   "field-1",
		"slot_id":    5,
		"start_date": "2030-06-03",
		"weekdays":   []string{"monday"},
		"weeks":      4,
	})
	ctx.Set("auth_claims", playerClaims())
	handler.handleRecurringCommit(ctx)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("commit status=%d body=%s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	created, _ := body["created"].([]any)
	if len(created) != 4 {
		t.Fatalf("expected 4 sessions, got %d", len(created))
	}
	if body["discount_percent"].(float64) != 5 {
		t.Fatalf("expected 5 percent discount, got %v", body["discount_percent"])
	}
	if body["per_session_cents"].(float64) != 9500 {
		t.Fatalf("expected 9500 per session, got %v", body["per_session_cents"])
	}
	if groupID, _ := body["group_id"].(string); groupID == "" {
		t.Fatalf("missing group_id: %v", body)
	}
}

func TestRespondErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{booking.ErrValidation, http.StatusBadRequest, "invalid_request"},
		{booking.ErrInvalidFieldID, http.StatusBadRequest, "invalid_request"},
		{booking.ErrNotFound, http.StatusNotFound, "not_found"},
		{booking.ErrCellConflict, http.StatusConflict, "cell_conflict"},
		{booking.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{booking.ErrHoldExpired, http.StatusGone, "hold_expired"},
		{booking.ErrDurationLimitExceeded, http.StatusUnprocessableEntity, "duration_limit_exceeded"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, testCase := range cases {
		ctx, recorder := newTestContext(http.MethodGet, "/", nil)
		respondError(ctx, testCase.err)
		if recorder.Code != testCase.status {
			t.Fatalf("%v: expected %d, got %d", testCase.err, testCase.status, recorder.Code)
		}
		if code := errorCode(t, recorder); code != testCase.code {
			t.Fatalf("%v: expected code %s, got %s", testCase.err, testCase.code, code)
		}
	}
}

func TestParseWeekdaysRejectsUnknown(t *testing.T) {
	weekdays, err := parseWeekdays([]string{" Monday", "FRIDAY "})
	if err != nil || len(weekdays) != 2 {
		t.Fatalf("expected two weekdays, got %v %v", weekdays, err)
	}
	if _, err := parseWeekdays([]string{"someday"}); !errors.Is(err, booking.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLocalGatewayResolvesOnce(t *testing.T) {
	gateway := NewLocalGateway()
	reservationID, err := booking.NewReservationID("res-1")
	if err != nil {
		t.Fatalf("reservation id: %v", err)
	}
	paymentRef, err := gateway.InitiatePayment(context.Background(), 3000, reservationID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	resolved, err := gateway.ResolvePaymentRef(context.Background(), paymentRef)
	if err != nil || resolved != reservationID {
		t.Fatalf("resolve: %v %v", resolved, err)
	}
	if _, err := gateway.ResolvePaymentRef(context.Background(), paymentRef); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat resolve, got %v", err)
	}
}

func newTestHandler(t *testing.T) *httpHandler {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/fieldbook.db"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := gormstore.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	field := gormstore.Field{FieldID: "field-1", ComplexID: "complex-1", FieldType: "eleven_a_side", BaselineCents: 10000, Status: "active", OwnerUserID: "owner-1"}
	if err := db.Create(&field).Error; err != nil {
		t.Fatalf("seed field: %v", err)
	}

	config := booking.Config{}
	if err := config.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	clock := func() int64 { return testNowUnix }
	engine, err := booking.NewEngine(gormstore.New(db), clock, config)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	cfg := Config{
		ListenAddr:        ":0",
		AllowedOrigins:    []string{"http://localhost:8000"},
		SessionSigningKey: "secret-key",
		SessionIssuer:     "tauth",
		SessionCookieName: "app_session",
	}
	return &httpHandler{
		logger:  zap.NewNop(),
		engine:  engine,
		gateway: NewLocalGateway(),
		cfg:     cfg,
	}
}

func playerClaims() *sessionvalidator.Claims {
	return &sessionvalidator.Claims{
		UserID:          "user-1",
		UserEmail:       "player@example.com",
		UserDisplayName: "Player One",
	}
}

func newTestContext(method, path string, payload map[string]any) (*gin.Context, *httptest.ResponseRecorder) {
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(method, path, payloadReader(payload))
	if payload != nil {
		ctx.Request.Header.Set("Content-Type", "application/json")
	}
	return ctx, recorder
}

func payloadReader(payload map[string]any) io.Reader {
	if payload == nil {
		return bytes.NewReader(nil)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return bytes.NewReader(nil)
	}
	return bytes.NewReader(raw)
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", recorder.Body.String(), err)
	}
	return body
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, recorder)
	errPayload, _ := body["error"].(map[string]any)
	code, _ := errPayload["code"].(string)
	return code
}
