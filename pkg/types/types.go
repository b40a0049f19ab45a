package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mpyk/mpyk/pkg/errors"
)

// TimestampLayout is the CSV timestamp format: naive UTC, whole seconds
const TimestampLayout = "2006-01-02T15:04:05"

// DateLayout names daily files
const DateLayout = "2006-01-02"

// VehicleType distinguishes trams from buses
type VehicleType int

const (
	VehicleTypeUnknown VehicleType = iota
	VehicleTypeTram
	VehicleTypeBus
)

// String returns the string representation of the vehicle type
func (t VehicleType) String() string {
	switch t {
	case VehicleTypeTram:
		return "tram"
	case VehicleTypeBus:
		return "bus"
	default:
		return "unknown"
	}
}

// ParseVehicleType parses "tram" or "bus"
func ParseVehicleType(s string) (VehicleType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tram":
		return VehicleTypeTram, nil
	case "bus":
		return VehicleTypeBus, nil
	default:
		return VehicleTypeUnknown, fmt.Errorf("unknown vehicle type: %q", s)
	}
}

// Position represents one vehicle observation
type Position struct {
	VehicleID string      `json:"vehicle_id"`
	Line      string      `json:"line"`
	Type      VehicleType `json:"type"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Timestamp time.Time   `json:"timestamp"`
}

// positionFields is the number of CSV columns produced by Values
const positionFields = 6

// Values returns the CSV row for the position
func (p Position) Values() []string {
	return []string{
		p.Timestamp.UTC().Format(TimestampLayout),
		p.VehicleID,
		p.Line,
		strconv.FormatFloat(p.Latitude, 'f', -1, 64),
		strconv.FormatFloat(p.Longitude, 'f', -1, 64),
		p.Type.String(),
	}
}

// Date returns the UTC calendar date of the observation as midnight UTC
func (p Position) Date() time.Time {
	return DateOf(p.Timestamp)
}

// DateOf truncates t to midnight of its UTC calendar date
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParsePosition parses a CSV row written by Values
func ParsePosition(record []string) (Position, error) {
	if len(record) != positionFields {
		return Position{}, errors.NewError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("expected %d fields, got %d", positionFields, len(record)))
	}

	ts, err := time.ParseInLocation(TimestampLayout, record[0], time.UTC)
	if err != nil {
		return Position{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid timestamp")
	}
	lat, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return Position{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid latitude")
	}
	lon, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return Position{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid longitude")
	}
	kind, err := ParseVehicleType(record[5])
	if err != nil {
		return Position{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid vehicle type")
	}

	return Position{
		VehicleID: record[1],
		Line:      record[2],
		Type:      kind,
		Latitude:  lat,
		Longitude: lon,
		Timestamp: ts,
	}, nil
}

// DailyFileName returns the CSV file name for date, e.g. 2024-01-01.csv
func DailyFileName(date time.Time) string {
	return date.UTC().Format(DateLayout) + ".csv"
}

// ArchiveFileName returns the ZIP name derived from a daily file name
func ArchiveFileName(csvFileName string) string {
	return csvFileName + ".zip"
}
