// Package position keeps an append-only log of motor work positions so a
// session can restore its work offset after the machine is power-cycled.
package position

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mastercactapus/motorctl/coord"
)

// TimestampFormat is the layout records are stamped with.
const TimestampFormat = "2006-01-02 15:04:05"

// ErrCorruptRecord is returned when the most recent record cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt position record")

// Record is the work position of one motor at the end of a session.
type Record struct {
	Timestamp    time.Time
	WorkPosition coord.Point
	MotorID      int
}

// NewRecord stamps pos with the current local time, truncated to seconds.
func NewRecord(motorID int, pos coord.Point) Record {
	return Record{
		Timestamp:    time.Now().Truncate(time.Second),
		WorkPosition: pos,
		MotorID:      motorID,
	}
}

type wireRecord struct {
	Timestamp    string    `json:"timestamp"`
	WorkPosition []float64 `json:"work_position"`
	MotorID      *int      `json:"motor_id"`
}

// MarshalJSON encodes the record as a single line object.
func (r Record) MarshalJSON() ([]byte, error) {
	id := r.MotorID
	return json.Marshal(wireRecord{
		Timestamp:    r.Timestamp.Format(TimestampFormat),
		WorkPosition: r.WorkPosition.Slice(),
		MotorID:      &id,
	})
}

// UnmarshalJSON decodes a record, rejecting unknown fields, missing fields,
// a malformed timestamp or a position without exactly three values.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireRecord
	err := dec.Decode(&w)
	if err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after record")
	}
	if w.MotorID == nil {
		return errors.New("missing motor_id")
	}
	ts, err := time.ParseInLocation(TimestampFormat, w.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	pos, err := coord.FromSlice(w.WorkPosition)
	if err != nil {
		return fmt.Errorf("work_position: %w", err)
	}

	*r = Record{Timestamp: ts, WorkPosition: pos, MotorID: *w.MotorID}
	return nil
}
