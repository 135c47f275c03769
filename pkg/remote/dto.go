package remote

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/dukex/runwatch/pkg/models"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type runRequest struct {
	ID     string         `json:"id"`
	Params map[string]any `json:"params"`
}

type runResponse struct {
	SerialID string `json:"serialId"`
}

type traceRequest struct {
	ID       string `json:"id"`
	SerialID string `json:"serialId"`
}

type traceResponse struct {
	Status  string      `json:"status"`
	Records []RecordDTO `json:"records"`
}

// RecordDTO is the wire form of one node or iteration record.
type RecordDTO struct {
	NodeID    string          `json:"nodeId"`
	Status    string          `json:"status"`
	StartTime Timestamp       `json:"startTime"`
	EndTime   Timestamp       `json:"endTime"`
	Duration  *float64        `json:"duration"`
	Input     map[string]any  `json:"input"`
	Output    map[string]any  `json:"output"`
	Error     json.RawMessage `json:"error"`
	SubIndex  *int            `json:"subIndex"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp decodes an ISO-8601 string or an epoch-millisecond number.
// Values that cannot be parsed leave the timestamp unset instead of failing
// the whole trace.
type Timestamp struct {
	Millis int64
	Valid  bool
	Raw    string
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] != '"' {
		t.Raw = string(trimmed)

		millis, err := strconv.ParseFloat(t.Raw, 64)
		if err == nil && millis >= math.MinInt64 && millis < math.MaxInt64 {
			t.Millis = int64(millis)
			t.Valid = true
		}

		return nil
	}

	var value string

	err := json.Unmarshal(trimmed, &value)
	if err != nil {
		return err
	}

	t.Raw = value
	if value == "" {
		return nil
	}

	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			t.Millis = parsed.UnixMilli()
			t.Valid = true

			return nil
		}
	}

	return nil
}

func (t Timestamp) pointer() *int64 {
	if !t.Valid {
		return nil
	}

	millis := t.Millis

	return &millis
}

// ToRecord maps a wire record into the canonical execution record.
func (d RecordDTO) ToRecord() models.ExecutionRecord {
	return models.ExecutionRecord{
		NodeID:    d.NodeID,
		SubIndex:  models.NormalizeSubIndex(d.SubIndex),
		Status:    models.ParseStatus(d.Status),
		StartTime: d.StartTime.pointer(),
		EndTime:   d.EndTime.pointer(),
		Duration:  d.Duration,
		Inputs:    d.Input,
		Outputs:   d.Output,
		Error:     errorMessage(d.Error),
	}
}

func errorMessage(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var message string
	if json.Unmarshal(trimmed, &message) == nil {
		return message
	}

	return string(trimmed)
}

func (r traceResponse) toSnapshot() *models.TraceSnapshot {
	records := make([]models.ExecutionRecord, 0, len(r.Records))
	for _, dto := range r.Records {
		records = append(records, dto.ToRecord())
	}

	return &models.TraceSnapshot{
		Status:  models.ParseStatus(r.Status),
		Records: records,
	}
}
