// Package risk decides whether a scored signal may become an order and
// how large that order is.
package risk

import (
	"fmt"
	"time"
)

type Policy struct {
	// Risk limits
	RiskFraction    float64 `yaml:"risk_fraction" json:"risk_fraction" default:"0.01" validate:"gt=0,lte=1"`         // 0.01
	MaxRiskFraction float64 `yaml:"max_risk_fraction" json:"max_risk_fraction" default:"0.015" validate:"gt=0,lte=1"` // 0.015

	// Circuit breakers
	MaxDailyLoss    float64       `yaml:"max_daily_loss" json:"max_daily_loss" default:"0.03" validate:"gt=0,lte=1"`   // 0.03
	MaxWeeklyLoss   float64       `yaml:"max_weekly_loss" json:"max_weekly_loss" default:"0.06" validate:"gt=0,lte=1"` // 0.06
	MaxTradesPerDay int           `yaml:"max_trades_per_day" json:"max_trades_per_day" default:"10" validate:"gte=0"`
	LossCooldown    time.Duration `yaml:"loss_cooldown" json:"loss_cooldown" default:"60s" validate:"gte=0"`

	// Exposure limits
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent" default:"2" validate:"gte=1"`

	// Stop distance bounds in ATRs
	MinStopATR float64 `yaml:"min_stop_atr" json:"min_stop_atr" default:"0.25" validate:"gte=0"`
	MaxStopATR float64 `yaml:"max_stop_atr" json:"max_stop_atr" default:"2" validate:"gt=0"`
}

func DefaultPolicy() Policy {
	return Policy{
		RiskFraction:    0.01,
		MaxRiskFraction: 0.015,
		MaxDailyLoss:    0.03,
		MaxWeeklyLoss:   0.06,
		MaxTradesPerDay: 10,
		LossCooldown:    60 * time.Second,
		MaxConcurrent:   2,
		MinStopATR:      0.25,
		MaxStopATR:      2,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.RiskFraction <= 0:
		return fmt.Errorf("risk.risk_fraction must be positive, got %v", p.RiskFraction)
	case p.MaxRiskFraction <= 0:
		return fmt.Errorf("risk.max_risk_fraction must be positive, got %v", p.MaxRiskFraction)
	case p.RiskFraction > p.MaxRiskFraction:
		return fmt.Errorf("risk.risk_fraction %.4f exceeds max_risk_fraction %.4f", p.RiskFraction, p.MaxRiskFraction)
	case p.MaxDailyLoss <= 0 || p.MaxWeeklyLoss <= 0:
		return fmt.Errorf("risk loss limits must be positive")
	case p.MaxWeeklyLoss < p.MaxDailyLoss:
		return fmt.Errorf("risk.max_weekly_loss %.4f is tighter than max_daily_loss %.4f", p.MaxWeeklyLoss, p.MaxDailyLoss)
	case p.MaxTradesPerDay < 0 || p.LossCooldown < 0:
		return fmt.Errorf("risk trade count and cooldown must not be negative")
	case p.MaxConcurrent < 1:
		return fmt.Errorf("risk.max_concurrent must be at least 1")
	case p.MinStopATR < 0 || p.MaxStopATR <= p.MinStopATR:
		return fmt.Errorf("risk stop bounds invalid: min %.2f max %.2f ATR", p.MinStopATR, p.MaxStopATR)
	}
	return nil
}
