package gx_modbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

type registerKey struct {
	unitId uint8
	addr   uint16
}

// TestServer is an in-process Modbus-TCP server holding a sparse holding
// register map per unit id. Unknown registers answer with an illegal data
// address exception, the way a GX does for absent services.
type TestServer struct {
	mu        sync.Mutex
	server    *modbus.ModbusServer
	registers map[registerKey]uint16
	readOnly  map[registerKey]bool
}

func CreateTestServer(host string, port uint) (*TestServer, error) {
	ts := &TestServer{
		registers: map[registerKey]uint16{},
		readOnly:  map[registerKey]bool{},
	}
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout:    30 * time.Second,
		MaxClients: 4,
	}, ts)
	if err != nil {
		return nil, err
	}
	ts.server = server
	return ts, nil
}

func (ts *TestServer) Start() error {
	return ts.server.Start()
}

func (ts *TestServer) Stop() error {
	return ts.server.Stop()
}

func (ts *TestServer) SetRegister(unitId uint8, addr uint16, value uint16) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.registers[registerKey{unitId, addr}] = value
}

// SetReadOnly makes writes to a register fail with an illegal function exception.
func (ts *TestServer) SetReadOnly(unitId uint8, addr uint16, readOnly bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.readOnly[registerKey{unitId, addr}] = readOnly
}

func (ts *TestServer) Register(unitId uint8, addr uint16) (uint16, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	value, ok := ts.registers[registerKey{unitId, addr}]
	return value, ok
}

func (ts *TestServer) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	res := make([]uint16, req.Quantity)
	for i := uint16(0); i < req.Quantity; i++ {
		key := registerKey{req.UnitId, req.Addr + i}
		if _, ok := ts.registers[key]; !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		if req.IsWrite {
			if ts.readOnly[key] {
				return nil, modbus.ErrIllegalFunction
			}
			ts.registers[key] = req.Args[i]
		}
		res[i] = ts.registers[key]
	}
	return res, nil
}

func (ts *TestServer) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (ts *TestServer) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (ts *TestServer) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}
