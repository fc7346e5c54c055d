package httpapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/PitchsideLabs/fieldbook/pkg/booking"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalGateway is the in-process payment collaborator used when no
// external provider is configured. It hands out opaque references and
// resolves confirmation callbacks from memory.
type LocalGateway struct {
	mutex      sync.Mutex
	references map[string]booking.ReservationID
}

// NewLocalGateway returns an empty in-memory gateway.
func NewLocalGateway() *LocalGateway {
	return &LocalGateway{references: make(map[string]booking.ReservationID)}
}

func (gateway *LocalGateway) InitiatePayment(_ context.Context, _ booking.AmountCents, reservationID booking.ReservationID) (string, error) {
	paymentRef := uuid.NewString()
	gateway.mutex.Lock()
	gateway.references[paymentRef] = reservationID
	gateway.mutex.Unlock()
	return paymentRef, nil
}

func (gateway *LocalGateway) ResolvePaymentRef(_ context.Context, paymentRef string) (booking.ReservationID, error) {
	gateway.mutex.Lock()
	reservationID, ok := gateway.references[paymentRef]
	if ok {
		delete(gateway.references, paymentRef)
	}
	gateway.mutex.Unlock()
	if !ok {
		return booking.ReservationID{}, fmt.Errorf("%w: unknown payment reference", booking.ErrNotFound)
	}
	return reservationID, nil
}

// ZapNotifier logs outbound notifications instead of delivering them.
// A real deployment swaps in a push or email sink behind the same
// interface.
type ZapNotifier struct {
	logger *zap.Logger
}

// NewZapNotifier returns a Notifier backed by the supplied logger.
func NewZapNotifier(logger *zap.Logger) *ZapNotifier {
	return &ZapNotifier{logger: logger}
}

func (notifier *ZapNotifier) Notify(_ context.Context, userID booking.UserID, eventType string, refID string, message string) error {
	notifier.logger.Info("notify",
		zap.String("user_id", userID.String()),
		zap.String("event", eventType),
		zap.String("ref", refID),
		zap.String("message", message),
	)
	return nil
}
