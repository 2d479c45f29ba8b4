package bus

import (
	"errors"
	"time"

	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/domain"
	"github.com/berfenger/exportlimit/internal/core/port"
	"github.com/berfenger/exportlimit/internal/metrics"
	"github.com/berfenger/exportlimit/pkg/gx_modbus"

	"go.uber.org/zap"
)

var errMultiRegisterWrite = errors.New("multi-register items are read-only")

// ModbusBus reaches bus items through the GX Modbus-TCP server. Items that
// have no register mapping do not exist on this bus.
type ModbusBus struct {
	client *gx_modbus.ModbusClient
	items  map[string]config.ModbusItemConfig
	logger *zap.Logger
}

func NewModbusBus(cfg config.ModbusBusConfig, logger *zap.Logger) (*ModbusBus, error) {
	client, err := gx_modbus.CreateModbusClient(cfg.Host, cfg.Port, time.Duration(cfg.TimeoutMillis)*time.Millisecond, logger,
		&gx_modbus.ModbusInstrument{
			RecordTime: func(fnName string, readTime time.Duration) {
				metrics.RecordBusOperation(config.TRANSPORT_MODBUS, fnName, readTime)
			},
		})
	if err != nil {
		return nil, err
	}
	items := make(map[string]config.ModbusItemConfig, len(cfg.Items))
	for _, item := range cfg.Items {
		items[itemKey(item.ServiceID, item.Path)] = item
	}
	return &ModbusBus{
		client: client,
		items:  items,
		logger: logger.With(zap.String("bus", config.TRANSPORT_MODBUS)),
	}, nil
}

func (b *ModbusBus) Open() error {
	return b.client.Open()
}

func (b *ModbusBus) Close() error {
	return b.client.Close()
}

func (b *ModbusBus) Read(serviceID, path string) (float64, error) {
	item, ok := b.items[itemKey(serviceID, path)]
	if !ok {
		return 0, domain.NewNotFound(serviceID, path, nil)
	}
	regs, err := b.client.ReadRegisters(item.UnitId, item.Address, max(1, item.Count))
	if err != nil {
		return 0, domain.NewNotFound(serviceID, path, err)
	}
	return gx_modbus.DecodeSum(regs, item.Signed, item.Scale), nil
}

func (b *ModbusBus) Write(serviceID, path string, value float64) error {
	item, ok := b.items[itemKey(serviceID, path)]
	if !ok {
		return domain.NewWriteError(serviceID, path, nil)
	}
	if item.Count > 1 {
		return domain.NewWriteError(serviceID, path, errMultiRegisterWrite)
	}
	raw, err := encodeItem(item, value)
	if err != nil {
		return domain.NewWriteError(serviceID, path, err)
	}
	if err := b.client.WriteRegister(item.UnitId, item.Address, raw); err != nil {
		return domain.NewWriteError(serviceID, path, err)
	}
	b.logger.Debug("modbus: register written", zap.String("service", serviceID), zap.String("path", path),
		zap.Uint8("unit_id", item.UnitId), zap.Uint16("address", item.Address), zap.Uint16("raw", raw))
	return nil
}

func encodeItem(item config.ModbusItemConfig, value float64) (uint16, error) {
	if item.NoLimitRaw != nil && value < 0 {
		return uint16(*item.NoLimitRaw), nil
	}
	return gx_modbus.Encode(value, item.Signed, item.Scale)
}

// ensure interface compliance
var _ port.Bus = (*ModbusBus)(nil)
