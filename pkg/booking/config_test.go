package booking

import (
	"errors"
	"testing"
)

func TestConfigValidateFillsDefaults(test *testing.T) {
	test.Parallel()
	config := Config{}
	if err := config.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if config.HoldTTLSeconds != 600 || config.UndoWindowSeconds != 900 {
		test.Fatalf("unexpected window defaults %d %d", config.HoldTTLSeconds, config.UndoWindowSeconds)
	}
	if config.MaxBookingMinutes != 4320 || config.DepositRatePercent != 30 || config.SweepBatchSize != 200 {
		test.Fatalf("unexpected defaults %+v", config)
	}
}

func TestConfigValidateRejectsNonsense(test *testing.T) {
	test.Parallel()
	cases := []Config{
		{HoldTTLSeconds: -1},
		{UndoWindowSeconds: -1},
		{MaxBookingMinutes: -1},
		{DepositRatePercent: 120},
		{SweepBatchSize: -1},
	}
	for _, config := range cases {
		broken := config
		if err := broken.Validate(); !errors.Is(err, ErrInvalidServiceConfig) {
			test.Fatalf("expected ErrInvalidServiceConfig for %+v, got %v", config, err)
		}
	}
}

func TestDefaultPolicyRates(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()
	if policy.CancelBeforeHours != 24 || policy.RefundRatePercent != 100 {
		test.Fatalf("unexpected refund defaults %+v", policy)
	}
	if policy.LateRefundRatePercent != 50 || policy.OwnerPenaltyRatePercent != 20 {
		test.Fatalf("unexpected late/penalty defaults %+v", policy)
	}
}
