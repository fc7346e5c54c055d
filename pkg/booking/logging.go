package booking

import (
	"context"

	"go.uber.org/zap"
)

// OperationLogger records domain-level events emitted by engine operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation     string
	UserID        UserID
	ReservationID ReservationID
	Cell          string
	Amount        AmountCents
	Count         int
	Status        string
	Error         error
}

// ZapOperationLogger adapts a zap logger to the OperationLogger contract.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wires a zap-backed operation logger.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	return &ZapOperationLogger{logger: logger}
}

// LogOperation emits one structured line per operation.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry OperationLog) {
	if operationLogger.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("user_id", entry.UserID.String()),
		zap.String("reservation_id", entry.ReservationID.String()),
		zap.String("cell", entry.Cell),
		zap.Int64("amount_cents", entry.Amount.Int64()),
		zap.Int("count", entry.Count),
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("booking operation failed", fields...)
		return
	}
	operationLogger.logger.Info("booking operation", fields...)
}

// Notifier is the fire-and-forget outbound event sink. Failures are
// logged by the caller and never roll back reservation state.
type Notifier interface {
	Notify(ctx context.Context, userID UserID, eventType string, refID string, message string) error
}

// PaymentGateway abstracts the external payment collaborator. The
// engine only needs a reference per hold and a way to resolve a
// confirmation callback back to a reservation.
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, amount AmountCents, reservationID ReservationID) (string, error)
	ResolvePaymentRef(ctx context.Context, paymentRef string) (ReservationID, error)
}
