package link

import (
	"encoding/binary"
	"fmt"
)

const (
	// sensorCountOffset is where the record count sits in a telemetry
	// response buffer.
	sensorCountOffset = 6

	// sensorDataOffset is where the first sensor record starts.
	sensorDataOffset = 7

	// sensorRecordSize is the size of one sensor record: a status byte
	// followed by a little-endian signed 16-bit raw value.
	sensorRecordSize = 3

	// SensorStatusAvailable marks a populated sensor slot. Any other status
	// means the slot is empty or the sensor is not present.
	SensorStatusAvailable byte = 0x00

	// tempScalingFactor converts raw temperature values to degrees Celsius.
	tempScalingFactor = 10.0
)

// SpeedSensor is one decoded fan or pump speed reading. RPM is nil when the
// slot reports unavailable; an absent reading is never zero.
type SpeedSensor struct {
	Index  int
	Status byte
	RPM    *int16
}

// Available reports whether the sensor slot holds a reading.
func (s SpeedSensor) Available() bool {
	return s.Status == SensorStatusAvailable
}

// TemperatureSensor is one decoded temperature probe reading. Celsius is nil
// when the slot reports unavailable.
type TemperatureSensor struct {
	Index   int
	Status  byte
	Celsius *float64
}

// Available reports whether the sensor slot holds a reading.
func (s TemperatureSensor) Available() bool {
	return s.Status == SensorStatusAvailable
}

// DecodeSpeedSensors decodes a speeds telemetry response into an ordered
// sensor list. The record order in the payload is the sensor identity for
// downstream consumers. The response is the full inbound report, not the
// stripped payload.
func DecodeSpeedSensors(response []byte) ([]SpeedSensor, error) {
	records, err := sensorRecords(response)
	if err != nil {
		return nil, err
	}

	sensors := make([]SpeedSensor, len(records))
	for i, rec := range records {
		sensors[i] = SpeedSensor{Index: i, Status: rec[0]}
		if rec[0] == SensorStatusAvailable {
			rpm := int16(binary.LittleEndian.Uint16(rec[1:3]))
			sensors[i].RPM = &rpm
		}
	}
	return sensors, nil
}

// DecodeTemperatureSensors decodes a temperatures telemetry response into an
// ordered sensor list. Raw values are tenths of a degree Celsius.
func DecodeTemperatureSensors(response []byte) ([]TemperatureSensor, error) {
	records, err := sensorRecords(response)
	if err != nil {
		return nil, err
	}

	sensors := make([]TemperatureSensor, len(records))
	for i, rec := range records {
		sensors[i] = TemperatureSensor{Index: i, Status: rec[0]}
		if rec[0] == SensorStatusAvailable {
			celsius := float64(int16(binary.LittleEndian.Uint16(rec[1:3]))) / tempScalingFactor
			sensors[i].Celsius = &celsius
		}
	}
	return sensors, nil
}

// sensorRecords slices a telemetry response into its sensor records after
// validating that the declared count fits the buffer.
func sensorRecords(response []byte) ([][]byte, error) {
	if len(response) <= sensorCountOffset {
		return nil, fmt.Errorf("%w: %d-byte response has no record count",
			ErrMalformedResponse, len(response))
	}

	count := int(response[sensorCountOffset])
	end := sensorDataOffset + count*sensorRecordSize
	if end > len(response) {
		return nil, fmt.Errorf("%w: %d records need %d bytes, response has %d",
			ErrMalformedResponse, count, end, len(response))
	}

	records := make([][]byte, count)
	for i := range records {
		off := sensorDataOffset + i*sensorRecordSize
		records[i] = response[off : off+sensorRecordSize]
	}
	return records, nil
}
