package booking

import "fmt"

const (
	defaultHoldTTLSeconds     = 600
	defaultUndoWindowSeconds  = 900
	defaultMaxBookingMinutes  = 4320
	defaultDepositRatePercent = 30
	defaultSweepBatchSize     = 200

	// Default policy applied when a field has no stored override.
	defaultCancelBeforeHours       = 24
	defaultRefundRatePercent       = 100
	defaultLateRefundRatePercent   = 50
	defaultOwnerPenaltyRatePercent = 20
)

// Config carries the tunables shared by the engine services.
type Config struct {
	HoldTTLSeconds     int64
	UndoWindowSeconds  int64
	MaxBookingMinutes  int
	DepositRatePercent int
	SweepBatchSize     int
}

// Validate fills defaults and rejects nonsense values.
func (config *Config) Validate() error {
	if config.HoldTTLSeconds == 0 {
		config.HoldTTLSeconds = defaultHoldTTLSeconds
	}
	if config.UndoWindowSeconds == 0 {
		config.UndoWindowSeconds = defaultUndoWindowSeconds
	}
	if config.MaxBookingMinutes == 0 {
		config.MaxBookingMinutes = defaultMaxBookingMinutes
	}
	if config.DepositRatePercent == 0 {
		config.DepositRatePercent = defaultDepositRatePercent
	}
	if config.SweepBatchSize == 0 {
		config.SweepBatchSize = defaultSweepBatchSize
	}
	if config.HoldTTLSeconds < 0 {
		return fmt.Errorf("%w: hold ttl must be positive", ErrInvalidServiceConfig)
	}
	if config.UndoWindowSeconds < 0 {
		return fmt.Errorf("%w: undo window must be positive", ErrInvalidServiceConfig)
	}
	if config.MaxBookingMinutes < 0 {
		return fmt.Errorf("%w: booking cap must be positive", ErrInvalidServiceConfig)
	}
	if config.DepositRatePercent < 0 || config.DepositRatePercent > 100 {
		return fmt.Errorf("%w: deposit rate must be a percentage", ErrInvalidServiceConfig)
	}
	if config.SweepBatchSize < 0 {
		return fmt.Errorf("%w: sweep batch size must be positive", ErrInvalidServiceConfig)
	}
	return nil
}

// DefaultPolicy is used when a field carries no stored cancellation
// policy row.
func DefaultPolicy() CancellationPolicy {
	return CancellationPolicy{
		CancelBeforeHours:       defaultCancelBeforeHours,
		RefundRatePercent:       defaultRefundRatePercent,
		LateRefundRatePercent:   defaultLateRefundRatePercent,
		OwnerPenaltyRatePercent: defaultOwnerPenaltyRatePercent,
	}
}
