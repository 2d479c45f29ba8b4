package util

import (
	"github.com/berfenger/exportlimit/internal/config"

	"go.uber.org/zap"
)

// LoadTestConfig returns the scenario configuration used across package tests:
// 15 kW export ceiling, 3 phases, 500 W floor, 2 kW ramp step.
func LoadTestConfig() config.Config {
	cfg := config.Default()
	cfg.LogLevel = zap.DebugLevel
	cfg.Bus.Modbus.Host = "-.-.-.-"
	cfg.Limit = config.LimitConfig{
		MaxExportW:        15000,
		PhaseCount:        3,
		MinOutputW:        500,
		MaxStepW:          2000,
		GradualAdjustment: true,
		ReserveMarginW:    500,
	}
	cfg.Control.IntervalMillis = 1000
	return cfg
}
