package modbus_input

import (
	"time"

	"github.com/simonvetter/modbus"
)

// InputReader reads a single digital input.
type InputReader interface {
	Open() error
	Close() error
	ReadInput() (bool, error)
}

type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func (reader ModbusClient) readDiscreteInput(addr uint16) (bool, error) {
	defer RecordTimer("ReadDiscreteInput", reader.instrument)()
	return reader.client.ReadDiscreteInput(addr)
}

func (reader ModbusClient) readCoil(addr uint16) (bool, error) {
	defer RecordTimer("ReadCoil", reader.instrument)()
	return reader.client.ReadCoil(addr)
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
