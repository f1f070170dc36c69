package modbus_input

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	REGISTER_DISCRETE_INPUT = "discrete_input"
	REGISTER_COIL           = "coil"
)

// ButtonModbusReader reads a doorbell push button wired to a Modbus-TCP
// digital input or coil.
type ButtonModbusReader struct {
	ModbusClient
	address  uint16
	register string
}

func CreateButtonModbusReader(host string, port uint, unitId uint8, address uint16, register string,
	timeout time.Duration, logger *zap.Logger, instrumentation *ModbusInstrument) (InputReader, error) {
	if register == "" {
		register = REGISTER_DISCRETE_INPUT
	}
	if register != REGISTER_DISCRETE_INPUT && register != REGISTER_COIL {
		return nil, fmt.Errorf("unsupported register type %q", register)
	}
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	// instrumentation
	inst := []ModbusInstrument{
		debugLoggerInstrumentation(logger.With(zap.String("target", "button"), zap.Uint8("unit", unitId))),
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	err = client.SetUnitId(unitId)
	if err != nil {
		return nil, err
	}
	return &ButtonModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
		address:  address,
		register: register,
	}, nil
}

func (reader *ButtonModbusReader) Open() error {
	return reader.client.Open()
}

func (reader *ButtonModbusReader) Close() error {
	return reader.client.Close()
}

func (reader *ButtonModbusReader) ReadInput() (bool, error) {
	if reader.register == REGISTER_COIL {
		return reader.readCoil(reader.address)
	}
	return reader.readDiscreteInput(reader.address)
}

func debugLoggerInstrumentation(logger *zap.Logger) ModbusInstrument {
	return ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug(fmt.Sprintf("modbus [%s]: %d millis", fnName, readTime.Milliseconds()))
		},
	}
}
