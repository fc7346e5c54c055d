package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	suggestionRatioThreshold = 0.70
	suggestionLimit          = 3
)

// Discount breakpoints by total session count, applied to the
// pre-deposit subtotal.
var discountBreakpoints = []struct {
	sessions int
	percent  int
}{
	{sessions: 16, percent: 15},
	{sessions: 8, percent: 10},
	{sessions: 4, percent: 5},
}

// Scheduler expands weekly-repeating requests into per-date hold
// attempts. Each date is an independent cell, so a conflict on one date
// never blocks the others: partial success is the designed behavior.
type Scheduler struct {
	holds    *Holds
	calendar *Calendar
	store    Store
	logger   OperationLogger
	config   Config
}

// NewScheduler wires a Scheduler.
func NewScheduler(holds *Holds, calendar *Calendar, store Store, config Config) (*Scheduler, error) {
	if holds == nil || calendar == nil || store == nil {
		return nil, fmt.Errorf("%w: scheduler dependency is nil", ErrInvalidServiceConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{holds: holds, calendar: calendar, store: store, config: config}, nil
}

// ExpandWeekly generates the concrete dates for "every {weekdays} for
// {weeks} weeks starting {start}". The result holds exactly
// len(weekdays) * weeks dates, all inside [start, start+weeks*7-1].
func ExpandWeekly(start Date, weekdays []time.Weekday, weeks int) ([]Date, error) {
	if start.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrValidation)
	}
	if weeks <= 0 {
		return nil, fmt.Errorf("%w: weeks must be positive", ErrValidation)
	}
	wanted := map[time.Weekday]bool{}
	for _, weekday := range weekdays {
		if weekday < time.Sunday || weekday > time.Saturday {
			return nil, fmt.Errorf("%w: weekday %d out of range", ErrValidation, weekday)
		}
		wanted[weekday] = true
	}
	if len(wanted) == 0 {
		return nil, fmt.Errorf("%w: weekday set is empty", ErrValidation)
	}
	dates := make([]Date, 0, len(wanted)*weeks)
	for offset := 0; offset < weeks*7; offset++ {
		candidate := start.AddDays(offset)
		if wanted[candidate.Weekday()] {
			dates = append(dates, candidate)
		}
	}
	return dates, nil
}

// DiscountPercent maps a session count to its discount percentage.
func DiscountPercent(sessions int) int {
	for _, breakpoint := range discountBreakpoints {
		if sessions >= breakpoint.sessions {
			return breakpoint.percent
		}
	}
	return 0
}

// PreviewSession is one expanded date with its current state and price.
type PreviewSession struct {
	Date       Date
	Status     CellStatus
	PriceCents AmountCents
}

// DateConflict names a date that could not be (or cannot be) booked.
type DateConflict struct {
	Date   Date
	Reason string
}

// PreviewResult shows the user what a recurring commit would do before
// anything is claimed.
type PreviewResult struct {
	Sessions        []PreviewSession
	Conflicts       []DateConflict
	SubtotalCents   AmountCents
	DiscountPercent int
	TotalCents      AmountCents
}

// Preview checks every expanded date against the calendar without
// claiming anything.
func (scheduler *Scheduler) Preview(ctx context.Context, fieldID FieldID, slotID SlotID, dates []Date) (PreviewResult, error) {
	price, err := scheduler.store.PriceFor(ctx, fieldID, slotID)
	if err != nil {
		return PreviewResult{}, err
	}
	result := PreviewResult{
		Sessions:  make([]PreviewSession, 0, len(dates)),
		Conflicts: make([]DateConflict, 0),
	}
	for _, date := range dates {
		status, err := scheduler.calendar.CellStatus(ctx, Cell{FieldID: fieldID, Date: date, SlotID: slotID})
		if err != nil {
			return PreviewResult{}, err
		}
		result.Sessions = append(result.Sessions, PreviewSession{Date: date, Status: status, PriceCents: price})
		if status != CellAvailable {
			result.Conflicts = append(result.Conflicts, DateConflict{Date: date, Reason: "cell is " + status.String()})
		}
	}
	result.SubtotalCents = AmountCents(price.Int64() * int64(len(dates)))
	result.DiscountPercent = DiscountPercent(len(dates))
	result.TotalCents = applyDiscount(result.SubtotalCents, result.DiscountPercent)
	return result, nil
}

// CommitResult aggregates per-date outcomes of a recurring commit. The
// call itself succeeds whenever the request was well-formed; conflicts
// are reported, not thrown.
type CommitResult struct {
	GroupID         string
	Created         []Hold
	Conflicts       []DateConflict
	DiscountPercent int
	PerSessionCents AmountCents
}

// Commit attempts an independent hold for every expanded date and
// collects successes and conflicts. The discount for the full session
// count is applied to each per-session price before the deposit split.
func (scheduler *Scheduler) Commit(ctx context.Context, fieldID FieldID, slotID SlotID, userID UserID, dates []Date, opponentWanted bool) (CommitResult, error) {
	if len(dates) == 0 {
		return CommitResult{}, fmt.Errorf("%w: no dates to commit", ErrValidation)
	}
	slot, err := SlotByID(slotID)
	if err != nil {
		return CommitResult{}, err
	}
	if scheduler.config.MaxBookingMinutes > 0 && len(dates)*slot.Minutes() > scheduler.config.MaxBookingMinutes {
		return CommitResult{}, fmt.Errorf("%w: %d sessions of %dm exceed cap %dm",
			ErrDurationLimitExceeded, len(dates), slot.Minutes(), scheduler.config.MaxBookingMinutes)
	}
	price, err := scheduler.store.PriceFor(ctx, fieldID, slotID)
	if err != nil {
		return CommitResult{}, err
	}
	result := CommitResult{
		GroupID:         uuid.NewString(),
		Created:         make([]Hold, 0, len(dates)),
		Conflicts:       make([]DateConflict, 0),
		DiscountPercent: DiscountPercent(len(dates)),
	}
	result.PerSessionCents = applyDiscount(price, result.DiscountPercent)
	for _, date := range dates {
		hold, err := scheduler.holds.CreateHold(ctx, HoldInput{
			Cell:           Cell{FieldID: fieldID, Date: date, SlotID: slotID},
			UserID:         userID,
			AmountCents:    result.PerSessionCents,
			OpponentWanted: opponentWanted,
			RecurringGroup: result.GroupID,
		})
		if err != nil {
			reason := err.Error()
			if errors.Is(err, ErrCellConflict) {
				reason = "cell already claimed"
			}
			result.Conflicts = append(result.Conflicts, DateConflict{Date: date, Reason: reason})
			continue
		}
		result.Created = append(result.Created, hold)
	}
	scheduler.logOperation(ctx, OperationLog{
		Operation: operationRecurringCommit,
		UserID:    userID,
		Cell:      fieldID.String() + "|" + fmt.Sprint(slotID.Int()),
		Count:     len(result.Created),
	})
	return result, nil
}

// WeekdaySuggestion is an alternative weekday with its availability
// ratio over the requested week span.
type WeekdaySuggestion struct {
	Weekday time.Weekday
	Ratio   float64
}

// SuggestWeekdays samples the calendar for weekdays outside the
// requested set and surfaces those whose availability ratio meets the
// threshold, best first, capped to a small count.
func (scheduler *Scheduler) SuggestWeekdays(ctx context.Context, fieldID FieldID, slotID SlotID, start Date, chosen []time.Weekday, weeks int) ([]WeekdaySuggestion, error) {
	if weeks <= 0 {
		return nil, fmt.Errorf("%w: weeks must be positive", ErrValidation)
	}
	excluded := map[time.Weekday]bool{}
	for _, weekday := range chosen {
		excluded[weekday] = true
	}
	suggestions := make([]WeekdaySuggestion, 0, 7)
	for weekday := time.Sunday; weekday <= time.Saturday; weekday++ {
		if excluded[weekday] {
			continue
		}
		dates, err := ExpandWeekly(start, []time.Weekday{weekday}, weeks)
		if err != nil {
			return nil, err
		}
		available := 0
		for _, date := range dates {
			status, err := scheduler.calendar.CellStatus(ctx, Cell{FieldID: fieldID, Date: date, SlotID: slotID})
			if err != nil {
				return nil, err
			}
			if status == CellAvailable {
				available++
			}
		}
		ratio := float64(available) / float64(len(dates))
		if ratio >= suggestionRatioThreshold {
			suggestions = append(suggestions, WeekdaySuggestion{Weekday: weekday, Ratio: ratio})
		}
	}
	sort.SliceStable(suggestions, func(left, right int) bool {
		return suggestions[left].Ratio > suggestions[right].Ratio
	})
	if len(suggestions) > suggestionLimit {
		suggestions = suggestions[:suggestionLimit]
	}
	return suggestions, nil
}

func (scheduler *Scheduler) logOperation(ctx context.Context, entry OperationLog) {
	if scheduler.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	scheduler.logger.LogOperation(ctx, entry)
}

func applyDiscount(amount AmountCents, percent int) AmountCents {
	return amount - AmountCents(amount.Int64()*int64(percent)/100)
}
