package model

import (
	"fmt"

	"github.com/psds-microservice/field-service/internal/errs"
)

// TelemetryReading — снимок состояния лифта с датчиков.
type TelemetryReading struct {
	ElevatorID  string           `json:"elevator_id"`
	Location    string           `json:"location"`
	Timestamp   string           `json:"timestamp"`
	Status      string           `json:"status"`
	Environment TelemetryEnv     `json:"environment"`
	Sensors     TelemetrySensors `json:"sensors"`
	FaultCodes  []int            `json:"fault_codes"`
}

type TelemetryEnv struct {
	TemperatureC    float64 `json:"temperature_c"`
	HumidityPercent float64 `json:"humidity_percent"`
}

type TelemetrySensors struct {
	VibrationRMS    float64 `json:"vibration_rms"`
	MotorCurrentA   float64 `json:"motor_current_a"`
	CarLoadKg       float64 `json:"car_load_kg"`
	AccelerationMS2 float64 `json:"acceleration_m_s2"`
}

const (
	FaultNone   = 0
	FaultDoor   = 101
	FaultDrive  = 201
	FaultSafety = 301
)

var faultNames = map[int]string{
	FaultNone:   "No fault",
	FaultDoor:   "Door system fault",
	FaultDrive:  "Drive system fault",
	FaultSafety: "Safety system fault",
}

func FaultName(code int) string {
	if n, ok := faultNames[code]; ok {
		return n
	}
	return fmt.Sprintf("Unknown fault %d", code)
}

// FaultClassification — структурированный ответ классификатора неисправностей.
type FaultClassification struct {
	FaultCode   int     `json:"fault_code"`
	Confidence  float64 `json:"confidence"`
	FaultReason string  `json:"fault_reason"`
	Severity    string  `json:"severity"`
}

func (c *FaultClassification) Validate() error {
	if _, ok := faultNames[c.FaultCode]; !ok {
		return errs.Validation("fault_code", fmt.Sprintf("unknown code %d", c.FaultCode))
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return errs.Validation("confidence", "must be within [0,1]")
	}
	if c.FaultCode != FaultNone {
		switch TicketPriority(c.Severity) {
		case TicketPriorityHigh, TicketPriorityMedium, TicketPriorityLow:
		default:
			return errs.Validation("severity", "must be High, Medium or Low")
		}
	}
	return nil
}

func (c *FaultClassification) HasFault() bool { return c.FaultCode != FaultNone }
