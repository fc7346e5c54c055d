package booking

const (
	operationClaim              = "claim"
	operationConfirm            = "confirm"
	operationRelease            = "release"
	operationCreateHold         = "create_hold"
	operationConfirmPayment     = "confirm_payment"
	operationExpireSweep        = "expire_sweep"
	operationRecurringCommit    = "recurring_commit"
	operationCancelRequest      = "cancel_request"
	operationCancelUndo         = "cancel_undo"
	operationCancelFinalize     = "cancel_finalize"
	operationStatusOK           = "ok"
	operationStatusError        = "error"
	releaseReasonExpired        = "hold expired"
	releaseReasonPaymentTimeout = "payment not confirmed before hold expiry"

	notifyReservationConfirmed = "reservation.confirmed"
	notifyReservationCancelled = "reservation.cancelled"
	notifyReservationExpired   = "reservation.expired"
	notifyOpponentWanted       = "reservation.opponent_wanted"
)
