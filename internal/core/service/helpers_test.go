package service

import (
	"github.com/berfenger/exportlimit/internal/adapter/bus"
	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/util"

	"go.uber.org/zap"
)

const (
	GRID_SVC     = "com.victronenergy.grid.cgwacs_ttyUSB0_mb1"
	GRID_SVC_ALT = "com.victronenergy.grid.cgwacs_ttyUSB1_mb1"
	SYSTEM_SVC   = "com.victronenergy.system"
	VEBUS_SVC    = "com.victronenergy.vebus.ttyS4"
	VEBUS_SVC_O1 = "com.victronenergy.vebus.ttyO1"
	PV_SVC       = "com.victronenergy.pvinverter.pvinverter0"
	SETTINGS_SVC = config.SERVICE_SETTINGS

	PATH_PRIMARY   = "/Hub4/AcPowerSetpoint"
	PATH_ALTERNATE = "/Settings/CGwacs/MaxFeedInPower"
	PATH_MODE      = "/Settings/CGwacs/Hub4Mode"
)

var phasePaths = []string{"/Hub4/L1/AcPowerSetpoint", "/Hub4/L2/AcPowerSetpoint", "/Hub4/L3/AcPowerSetpoint"}

var testLogger = zap.Must(zap.NewDevelopment())

// newSiteBus returns a bus with a grid meter reporting exportW and a
// ttyS4 vebus accepting every setpoint write.
func newSiteBus(exportW float64) *bus.MemoryBus {
	b := bus.NewMemoryBus()
	// the grid meter reports import as positive
	b.Set(GRID_SVC, "/Ac/Power", -exportW)
	b.Set(VEBUS_SVC, "/Ac/Out/P", 0)
	b.Set(VEBUS_SVC, PATH_PRIMARY, 0)
	b.Set(SETTINGS_SVC, PATH_ALTERNATE, -1)
	b.Set(SETTINGS_SVC, PATH_MODE, 3)
	for _, p := range phasePaths {
		b.Set(VEBUS_SVC, p, 0)
	}
	return b
}

func setExport(b *bus.MemoryBus, exportW float64) {
	b.Set(GRID_SVC, "/Ac/Power", -exportW)
}

func testConfig() config.Config {
	return util.LoadTestConfig()
}
