// Package validation classifies aggregated trades as admissible, admissible with
// warnings, or rejected.
package validation

import (
	"fmt"
	"math"
	"time"

	"cryptoTradeSync/internal/domain"
)

// Thresholds for the price-versus-ledger cross-check, in percent.
const (
	CrossCheckWarnPct     = 1.0
	CrossCheckCriticalPct = 10.0
)

// Config holds the validator's tunables.
type Config struct {
	MinHold time.Duration // Holds shorter than this are flagged
	MaxHold time.Duration // Holds longer than this are flagged
	// CrossCheckAbsTolerance ignores absolute differences below this amount
	// (float noise only; the percentage thresholds govern everything above it).
	CrossCheckAbsTolerance float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinHold:                time.Minute,
		MaxHold:                30 * 24 * time.Hour,
		CrossCheckAbsTolerance: 1e-8,
	}
}

// Validator checks aggregated trades. It never fails; it always returns a verdict.
type Validator struct {
	cfg Config
}

// New creates a validator.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate returns the verdict for one trade.
func (v *Validator) Validate(t *domain.AggregatedTrade) domain.ValidationResult {
	res := domain.ValidationResult{
		Errors:   make([]domain.ValidationIssue, 0),
		Warnings: make([]domain.ValidationIssue, 0),
	}
	critical := func(field, msg string) {
		res.Errors = append(res.Errors, domain.ValidationIssue{Field: field, Message: msg})
	}
	warn := func(field, msg string) {
		res.Warnings = append(res.Warnings, domain.ValidationIssue{Field: field, Message: msg})
	}

	if t.ID == "" {
		critical("id", "trade identifier is missing")
	}
	if !t.Direction.IsValid() {
		critical("direction", fmt.Sprintf("invalid direction %q", t.Direction))
	}
	if !(t.EntryPrice > 0) {
		critical("entryPrice", fmt.Sprintf("entry price must be positive, got %v", t.EntryPrice))
	}
	if !(t.ExitPrice > 0) {
		critical("exitPrice", fmt.Sprintf("exit price must be positive, got %v", t.ExitPrice))
	}
	if !(t.Quantity > 0) {
		critical("quantity", fmt.Sprintf("quantity must be positive, got %v", t.Quantity))
	}
	timesOK := true
	if !wellFormed(t.EntryTime) {
		critical("entryTime", "entry time is missing or malformed")
		timesOK = false
	}
	if !wellFormed(t.ExitTime) {
		critical("exitTime", "exit time is missing or malformed")
		timesOK = false
	}
	if timesOK && t.ExitTime.Before(t.EntryTime) {
		critical("exitTime", "exit time is before entry time")
	}

	if t.Commission == 0 {
		warn("commission", "commission is zero")
	}
	if t.RealizedPnL == 0 && t.EntryPrice != t.ExitPrice {
		warn("realizedPnl", "realized P&L is zero although entry and exit prices differ")
	}
	if timesOK && !t.ExitTime.Before(t.EntryTime) {
		hold := t.ExitTime.Sub(t.EntryTime)
		if hold < v.cfg.MinHold {
			warn("holdTime", fmt.Sprintf("hold time %s is under %s", hold, v.cfg.MinHold))
		}
		if hold > v.cfg.MaxHold {
			warn("holdTime", fmt.Sprintf("hold time %s exceeds %s", hold, v.cfg.MaxHold))
		}
	}

	if t.Direction.IsValid() && t.Quantity > 0 && t.EntryPrice > 0 && t.ExitPrice > 0 {
		res.CrossCheck = v.crossCheck(t)
		cc := res.CrossCheck
		if cc.Difference > v.cfg.CrossCheckAbsTolerance {
			msg := fmt.Sprintf("price-implied P&L %.6f differs from ledger P&L %.6f by %.2f%%",
				cc.ComputedPnL, cc.ReportedPnL, cc.DifferencePct)
			switch {
			case cc.DifferencePct > CrossCheckCriticalPct:
				critical("pnlCrossCheck", msg)
			case cc.DifferencePct > CrossCheckWarnPct:
				warn("pnlCrossCheck", msg)
			}
		}
	}

	return res
}

// crossCheck recomputes P&L from price difference × quantity × direction sign and compares
// it with the ledger-reported realized P&L. The percentage is relative to the computed value.
func (v *Validator) crossCheck(t *domain.AggregatedTrade) domain.CrossCheck {
	computed := (t.ExitPrice - t.EntryPrice) * t.Quantity * t.Direction.Sign()
	diff := math.Abs(computed - t.RealizedPnL)
	var pct float64
	switch {
	case computed != 0:
		pct = diff / math.Abs(computed) * 100
	case diff != 0:
		pct = 100
	}
	return domain.CrossCheck{
		ComputedPnL:   computed,
		ReportedPnL:   t.RealizedPnL,
		Difference:    diff,
		DifferencePct: pct,
	}
}

func wellFormed(ts time.Time) bool {
	return !ts.IsZero() && ts.Unix() > 0
}

// BatchResult partitions a set of validated trades.
type BatchResult struct {
	Valid        []*domain.AggregatedTrade // Admissible without warnings
	WithWarnings []*domain.AggregatedTrade // Admissible, flagged for review
	Invalid      []*domain.AggregatedTrade // Rejected
	Summary      domain.ValidationSummary
}

// Admitted returns the trades that may be persisted, in input order of the two groups.
func (b *BatchResult) Admitted() []*domain.AggregatedTrade {
	out := make([]*domain.AggregatedTrade, 0, len(b.Valid)+len(b.WithWarnings))
	out = append(out, b.Valid...)
	return append(out, b.WithWarnings...)
}

// ValidateAll validates each trade, stores the verdict on it and tallies counts per field.
func (v *Validator) ValidateAll(trades []*domain.AggregatedTrade) *BatchResult {
	b := &BatchResult{
		Valid:        make([]*domain.AggregatedTrade, 0),
		WithWarnings: make([]*domain.AggregatedTrade, 0),
		Invalid:      make([]*domain.AggregatedTrade, 0),
		Summary: domain.ValidationSummary{
			Total:         len(trades),
			ErrorCounts:   make(map[string]int),
			WarningCounts: make(map[string]int),
		},
	}
	for _, t := range trades {
		t.Validation = v.Validate(t)
		for _, e := range t.Validation.Errors {
			b.Summary.ErrorCounts[e.Field]++
		}
		for _, w := range t.Validation.Warnings {
			b.Summary.WarningCounts[w.Field]++
		}
		switch {
		case !t.Validation.IsValid():
			b.Invalid = append(b.Invalid, t)
		case t.Validation.HasWarnings():
			b.WithWarnings = append(b.WithWarnings, t)
		default:
			b.Valid = append(b.Valid, t)
		}
	}
	b.Summary.Valid = len(b.Valid) + len(b.WithWarnings)
	b.Summary.Invalid = len(b.Invalid)
	b.Summary.WithWarnings = len(b.WithWarnings)
	return b
}
