package config

import "github.com/berfenger/exportlimit/internal/core/domain"

const (
	SERVICE_SETTINGS = "com.victronenergy.settings"
	// Hub4Mode 3 = ESS external control, required for the per-phase setpoints
	HUB4_MODE_EXTERNAL_CONTROL = 3
)

// DefaultDevices lists the service ids seen on Venus OS installations, most common first.
func DefaultDevices() DevicesConfig {
	return DevicesConfig{
		Grid: []domain.DeviceCandidate{
			{ServiceID: "com.victronenergy.grid.cgwacs_ttyUSB0_mb1", ObjectPath: "/Ac/Power", Invert: true},
			{ServiceID: "com.victronenergy.grid.cgwacs_ttyUSB1_mb1", ObjectPath: "/Ac/Power", Invert: true},
			{ServiceID: "com.victronenergy.grid.cgwacs_ttyS0_mb1", ObjectPath: "/Ac/Power", Invert: true},
			{ServiceID: "com.victronenergy.system", ObjectPath: "/Ac/Grid/Power", Invert: true},
		},
		Inverter: []domain.DeviceCandidate{
			{ServiceID: "com.victronenergy.vebus.ttyS4", ObjectPath: "/Ac/Out/P"},
			{ServiceID: "com.victronenergy.vebus.ttyO1", ObjectPath: "/Ac/Out/P"},
			{ServiceID: "com.victronenergy.vebus.ttyS3", ObjectPath: "/Ac/Out/P"},
		},
		PVInverter: []domain.DeviceCandidate{
			{ServiceID: "com.victronenergy.pvinverter.pvinverter0", ObjectPath: "/Ac/Power"},
			{ServiceID: "com.victronenergy.pvinverter.pvinverter1", ObjectPath: "/Ac/Power"},
		},
	}
}

func DefaultActuation() ActuationConfig {
	return ActuationConfig{
		Primary:   domain.WriteTarget{Path: "/Hub4/AcPowerSetpoint"},
		Alternate: domain.WriteTarget{ServiceID: SERVICE_SETTINGS, Path: "/Settings/CGwacs/MaxFeedInPower"},
		Phases: []domain.WriteTarget{
			{Path: "/Hub4/L1/AcPowerSetpoint"},
			{Path: "/Hub4/L2/AcPowerSetpoint"},
			{Path: "/Hub4/L3/AcPowerSetpoint"},
		},
		Mode: ModeGateConfig{
			WriteTarget: domain.WriteTarget{ServiceID: SERVICE_SETTINGS, Path: "/Settings/CGwacs/Hub4Mode"},
			Required:    HUB4_MODE_EXTERNAL_CONTROL,
		},
		ReleaseValue: -1,
	}
}

// DefaultModbusItems follows the GX Modbus-TCP register list. Unit ids depend
// on the installation and usually need overriding.
func DefaultModbusItems() []ModbusItemConfig {
	return []ModbusItemConfig{
		{ServiceID: "com.victronenergy.grid.cgwacs_ttyUSB0_mb1", Path: "/Ac/Power", UnitId: 30, Address: 2600, Count: 3, Scale: 1, Signed: true},
		{ServiceID: "com.victronenergy.system", Path: "/Ac/Grid/Power", UnitId: 100, Address: 820, Count: 3, Scale: 1, Signed: true},
		{ServiceID: "com.victronenergy.vebus.ttyS4", Path: "/Ac/Out/P", UnitId: 227, Address: 23, Count: 3, Scale: 10, Signed: true},
		{ServiceID: "com.victronenergy.vebus.ttyS4", Path: "/Hub4/L1/AcPowerSetpoint", UnitId: 227, Address: 37, Count: 1, Scale: 1, Signed: true},
		{ServiceID: "com.victronenergy.vebus.ttyS4", Path: "/Hub4/L2/AcPowerSetpoint", UnitId: 227, Address: 40, Count: 1, Scale: 1, Signed: true},
		{ServiceID: "com.victronenergy.vebus.ttyS4", Path: "/Hub4/L3/AcPowerSetpoint", UnitId: 227, Address: 41, Count: 1, Scale: 1, Signed: true},
		{ServiceID: SERVICE_SETTINGS, Path: "/Settings/CGwacs/AcPowerSetPoint", UnitId: 100, Address: 2700, Count: 1, Scale: 1, Signed: true},
		{ServiceID: SERVICE_SETTINGS, Path: "/Settings/CGwacs/MaxFeedInPower", UnitId: 100, Address: 2706, Count: 1, Scale: 100, Signed: true, NoLimitRaw: rawValue(-1)},
		{ServiceID: SERVICE_SETTINGS, Path: "/Settings/CGwacs/Hub4Mode", UnitId: 100, Address: 2902, Count: 1, Scale: 1},
		{ServiceID: "com.victronenergy.pvinverter.pvinverter0", Path: "/Ac/Power", UnitId: 20, Address: 1052, Count: 1, Scale: 1, Signed: true},
	}
}

func rawValue(v int16) *int16 {
	return &v
}

func DefaultMQTTServices() []MQTTServiceConfig {
	return []MQTTServiceConfig{
		{ServiceID: "com.victronenergy.grid.cgwacs_ttyUSB0_mb1", Type: "grid", Instance: 30},
		{ServiceID: "com.victronenergy.system", Type: "system", Instance: 0},
		{ServiceID: "com.victronenergy.vebus.ttyS4", Type: "vebus", Instance: 276},
		{ServiceID: SERVICE_SETTINGS, Type: "settings", Instance: 0},
		{ServiceID: "com.victronenergy.pvinverter.pvinverter0", Type: "pvinverter", Instance: 20},
	}
}

// Default returns a configuration with every built-in default. Scalars are
// also registered as viper defaults by the binary.
func Default() Config {
	return Config{
		Port: 8080,
		Control: ControlConfig{
			IntervalMillis:         2000,
			IterationTimeoutMillis: 1500,
		},
		Health: HealthConfig{
			MaxConsecutiveFailures: 10,
		},
		Limit: LimitConfig{
			MaxExportW:        15000,
			PhaseCount:        3,
			MinOutputW:        500,
			MaxStepW:          2000,
			GradualAdjustment: true,
			ReserveMarginW:    500,
		},
		Actuation: DefaultActuation(),
		Telemetry: TelemetryConfig{
			Roles: []domain.Role{domain.RoleGridMeter},
		},
		Devices: DefaultDevices(),
		Bus: BusConfig{
			Transport: TRANSPORT_MODBUS,
			Modbus: ModbusBusConfig{
				Host:          "venus.local",
				Port:          502,
				TimeoutMillis: 1000,
				Items:         DefaultModbusItems(),
			},
			MQTT: MQTTBusConfig{
				Host:             "venus.local",
				Port:             1883,
				StaleAfterMillis: 10000,
				Services:         DefaultMQTTServices(),
			},
		},
	}
}

func SafeCopy(cfg Config) Config {
	if cfg.Bus.MQTT.Username != "" {
		cfg.Bus.MQTT.Username = "*redacted*"
	}
	if cfg.Bus.MQTT.Password != "" {
		cfg.Bus.MQTT.Password = "*redacted*"
	}
	return cfg
}
