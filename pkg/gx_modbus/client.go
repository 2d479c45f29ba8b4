package gx_modbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// ModbusClient is a Modbus-TCP client for a GX device. The GX exposes every
// service behind its own unit id on one TCP endpoint, so calls are serialized
// and carry the unit id.
type ModbusClient struct {
	mu         sync.Mutex
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func CreateModbusClient(host string, port uint, timeout time.Duration, logger *zap.Logger,
	instrumentation *ModbusInstrument) (*ModbusClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	// instrumentation
	var inst []ModbusInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("target", "gx"), zap.String("host", host)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return &ModbusClient{
		client:     client,
		instrument: inst,
	}, nil
}

func (c *ModbusClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Open()
}

func (c *ModbusClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Close()
}

func (c *ModbusClient) ReadRegisters(unitId uint8, addr uint16, quantity uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer RecordTimer("ReadRegisters", c.instrument)()
	if err := c.client.SetUnitId(unitId); err != nil {
		return nil, err
	}
	return c.client.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
}

func (c *ModbusClient) WriteRegister(unitId uint8, addr uint16, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer RecordTimer("WriteRegister", c.instrument)()
	if err := c.client.SetUnitId(unitId); err != nil {
		return err
	}
	return c.client.WriteRegister(addr, value)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus timing", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}
