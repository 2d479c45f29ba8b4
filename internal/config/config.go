package config

import (
	"errors"
	"fmt"

	"github.com/berfenger/exportlimit/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

const (
	TRANSPORT_MODBUS = "modbus"
	TRANSPORT_MQTT   = "mqtt"
)

type Config struct {
	LogLevel  zapcore.Level
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
	Control   ControlConfig   `mapstructure:"control"`
	Health    HealthConfig    `mapstructure:"health"`
	Limit     LimitConfig     `mapstructure:"limit"`
	Actuation ActuationConfig `mapstructure:"actuation"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Devices   DevicesConfig   `mapstructure:"devices"`
	Bus       BusConfig       `mapstructure:"bus"`
}

type ControlConfig struct {
	IntervalMillis         uint32 `mapstructure:"interval_millis"`
	IterationTimeoutMillis uint32 `mapstructure:"iteration_timeout_millis"`
}

type HealthConfig struct {
	MaxConsecutiveFailures uint `mapstructure:"max_consecutive_failures"`
}

type LimitConfig struct {
	MaxExportW        float64 `mapstructure:"max_export_w"`
	PhaseCount        int     `mapstructure:"phase_count"`
	MinOutputW        float64 `mapstructure:"min_output_w"`
	MaxStepW          float64 `mapstructure:"max_step_w"`
	GradualAdjustment bool    `mapstructure:"gradual_adjustment"`
	ReserveMarginW    float64 `mapstructure:"reserve_margin_w"`
}

type ActuationConfig struct {
	Primary         domain.WriteTarget   `mapstructure:"primary"`
	Alternate       domain.WriteTarget   `mapstructure:"alternate"`
	Phases          []domain.WriteTarget `mapstructure:"phases"`
	MinPhases       int                  `mapstructure:"min_phases"` // 0 means phase_count - 1
	Mode            ModeGateConfig       `mapstructure:"mode"`
	ExplicitRelease bool                 `mapstructure:"explicit_release"`
	ReleaseValue    float64              `mapstructure:"release_value"`
}

type ModeGateConfig struct {
	domain.WriteTarget `mapstructure:",squash"`
	Required           float64 `mapstructure:"required"`
}

type TelemetryConfig struct {
	Roles []domain.Role `mapstructure:"roles"`
}

type DevicesConfig struct {
	Grid       []domain.DeviceCandidate `mapstructure:"grid"`
	Inverter   []domain.DeviceCandidate `mapstructure:"inverter"`
	PVInverter []domain.DeviceCandidate `mapstructure:"pvinverter"`
}

type BusConfig struct {
	Transport string          `mapstructure:"transport"`
	Modbus    ModbusBusConfig `mapstructure:"modbus"`
	MQTT      MQTTBusConfig   `mapstructure:"mqtt"`
}

type ModbusBusConfig struct {
	Host          string
	Port          uint
	TimeoutMillis uint32             `mapstructure:"timeout_millis"`
	Items         []ModbusItemConfig `mapstructure:"items"`
}

// ModbusItemConfig maps a bus item to Modbus holding registers.
// Watts = raw * Scale. Count > 1 sums consecutive registers (per-phase values).
// When NoLimitRaw is set, a negative value is written as that raw register
// value instead of being scaled.
type ModbusItemConfig struct {
	ServiceID  string  `mapstructure:"service"`
	Path       string  `mapstructure:"path"`
	UnitId     uint8   `mapstructure:"unit_id"`
	Address    uint16  `mapstructure:"address"`
	Count      uint16  `mapstructure:"count"`
	Scale      float64 `mapstructure:"scale"`
	Signed     bool    `mapstructure:"signed"`
	NoLimitRaw *int16  `mapstructure:"no_limit_raw"`
}

type MQTTBusConfig struct {
	Host             string
	Port             int
	Username         string
	Password         string
	PortalId         string              `mapstructure:"portal_id"`
	StaleAfterMillis uint32              `mapstructure:"stale_after_millis"`
	Services         []MQTTServiceConfig `mapstructure:"services"`
}

// MQTTServiceConfig maps a bus service id to its Venus MQTT topic prefix.
type MQTTServiceConfig struct {
	ServiceID string `mapstructure:"service"`
	Type      string `mapstructure:"type"`
	Instance  uint   `mapstructure:"instance"`
}

// Candidates returns the ordered discovery list of a role.
func (d DevicesConfig) Candidates(role domain.Role) []domain.DeviceCandidate {
	var list []domain.DeviceCandidate
	switch role {
	case domain.RoleGridMeter:
		list = d.Grid
	case domain.RoleInverter:
		list = d.Inverter
	case domain.RolePVInverter:
		list = d.PVInverter
	}
	candidates := make([]domain.DeviceCandidate, len(list))
	for i, c := range list {
		c.Role = role
		candidates[i] = c
	}
	return candidates
}

// EffectiveMinPhases is the number of phase writes needed for the per-phase strategy to succeed.
func (c Config) EffectiveMinPhases() int {
	if c.Actuation.MinPhases > 0 {
		return c.Actuation.MinPhases
	}
	return max(1, c.Limit.PhaseCount-1)
}

// Validate reports every violated constraint, wrapped in domain.ErrConfigInvalid.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	l := c.Limit
	check(l.MaxExportW > 0, "limit.max_export_w must be > 0 (got %v)", l.MaxExportW)
	check(l.PhaseCount == 1 || l.PhaseCount == 3, "limit.phase_count must be 1 or 3 (got %d)", l.PhaseCount)
	check(l.MinOutputW >= 0, "limit.min_output_w must be >= 0 (got %v)", l.MinOutputW)
	check(l.MinOutputW < l.MaxExportW, "limit.min_output_w must be < limit.max_export_w (got %v >= %v)", l.MinOutputW, l.MaxExportW)
	check(l.MaxStepW >= 0, "limit.max_step_w must be >= 0 (got %v)", l.MaxStepW)
	check(l.ReserveMarginW >= 0, "limit.reserve_margin_w must be >= 0 (got %v)", l.ReserveMarginW)

	check(c.Control.IntervalMillis >= 1000, "control.interval_millis should be >= 1000 (got %d)", c.Control.IntervalMillis)
	check(c.Control.IterationTimeoutMillis > 0, "control.iteration_timeout_millis must be > 0")

	check(len(c.Actuation.Phases) >= l.PhaseCount, "actuation.phases must list at least limit.phase_count targets (got %d)", len(c.Actuation.Phases))
	check(c.Actuation.MinPhases >= 0 && c.Actuation.MinPhases <= l.PhaseCount, "actuation.min_phases must be between 0 and limit.phase_count (got %d)", c.Actuation.MinPhases)
	check(c.Actuation.Primary.Path != "" || c.Actuation.Alternate.Path != "" || len(c.Actuation.Phases) > 0,
		"actuation: no write target configured")

	check(len(c.Telemetry.Roles) > 0, "telemetry.roles must not be empty")
	for _, role := range c.Telemetry.Roles {
		check(len(c.Devices.Candidates(role)) > 0, "devices.%s: no candidates for telemetry role", role)
	}
	check(len(c.Devices.Inverter) > 0, "devices.inverter: no candidates")

	switch c.Bus.Transport {
	case TRANSPORT_MODBUS:
		check(c.Bus.Modbus.Host != "", "bus.modbus.host must be set")
		for i, item := range c.Bus.Modbus.Items {
			check(item.Scale != 0, "bus.modbus.items[%d]: scale must not be 0", i)
		}
	case TRANSPORT_MQTT:
		check(c.Bus.MQTT.Host != "", "bus.mqtt.host must be set")
		check(c.Bus.MQTT.PortalId != "", "bus.mqtt.portal_id must be set")
	default:
		errs = append(errs, fmt.Errorf("bus.transport must be %q or %q (got %q)", TRANSPORT_MODBUS, TRANSPORT_MQTT, c.Bus.Transport))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}
