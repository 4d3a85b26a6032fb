package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kaipokrandt/iotsecuritydash/errors"
	"github.com/kaipokrandt/iotsecuritydash/pkg/timestamp"
)

// Result is the outcome of classifying a single inbound frame. Exactly one
// of Anomaly and Readings is populated; Dropped counts batch records that
// were structurally valid JSON but missing their metric bundle.
type Result struct {
	Anomaly  *AnomalyEvent
	Readings []ReadingEvent
	Dropped  int
}

// rawFrame covers both frame shapes on the wire. Anomaly frames carry the
// originating reading's fields inline next to the "type" discriminant.
type rawFrame struct {
	Type      string          `json:"type"`
	ID        json.RawMessage `json:"id"`
	DeviceID  string          `json:"device_id"`
	Timestamp any             `json:"timestamp"`
	Message   string          `json:"message"`
	Payload   struct {
		Metrics map[string]any `json:"metrics"`
	} `json:"payload"`
}

// Classify decodes a raw frame into either one AnomalyEvent or one or more
// ReadingEvents. It is pure: now supplies the anomaly detection time so the
// caller controls the clock.
//
// Accepted forms: an anomaly object (discriminant type == "anomaly"), a
// single reading object, or a JSON array of reading objects. A reading
// without its metric bundle is malformed; inside a batch only that record
// is dropped, while a frame yielding nothing at all is an error.
func Classify(raw []byte, now time.Time) (Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Result{}, errors.WrapInvalid(errors.ErrEmptyFrame, "telemetry", "Classify", "decode frame")
	}

	if trimmed[0] == '[' {
		return classifyBatch(trimmed)
	}

	frame, err := decodeFrame(trimmed)
	if err != nil {
		return Result{}, err
	}

	if frame.Type == "anomaly" {
		anomaly := buildAnomaly(frame, now)
		return Result{Anomaly: &anomaly}, nil
	}

	reading, err := buildReading(frame)
	if err != nil {
		return Result{}, err
	}
	return Result{Readings: []ReadingEvent{reading}}, nil
}

func classifyBatch(trimmed []byte) (Result, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return Result{}, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrDecodeFailed, err), "telemetry", "Classify", "decode batch")
	}

	result := Result{}
	for _, record := range records {
		frame, err := decodeFrame(record)
		if err != nil {
			result.Dropped++
			continue
		}
		reading, err := buildReading(frame)
		if err != nil {
			result.Dropped++
			continue
		}
		result.Readings = append(result.Readings, reading)
	}

	if len(result.Readings) == 0 {
		return Result{}, errors.WrapInvalid(errors.ErrEmptyFrame, "telemetry", "Classify", "decode batch")
	}
	return result, nil
}

func decodeFrame(raw []byte) (rawFrame, error) {
	var frame rawFrame
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&frame); err != nil {
		return rawFrame{}, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrDecodeFailed, err), "telemetry", "Classify", "decode frame")
	}
	return frame, nil
}

func buildAnomaly(frame rawFrame, now time.Time) AnomalyEvent {
	message := frame.Message
	if message == "" {
		message = DefaultAnomalyMessage
	}
	return AnomalyEvent{
		DetectedAt: now,
		DeviceID:   frame.DeviceID,
		Metrics:    toMetricBundle(frame.Payload.Metrics),
		Message:    message,
		ReadingID:  decodeID(frame.ID),
	}
}

func buildReading(frame rawFrame) (ReadingEvent, error) {
	if frame.Payload.Metrics == nil {
		return ReadingEvent{}, errors.WrapInvalid(errors.ErrMalformedPayload, "telemetry", "Classify", "read metric bundle")
	}
	return ReadingEvent{
		ID:        decodeID(frame.ID),
		DeviceID:  frame.DeviceID,
		Timestamp: timestamp.FromAny(frame.Timestamp),
		Metrics:   toMetricBundle(frame.Payload.Metrics),
	}, nil
}

// decodeID accepts the reading identity as either a JSON string or number.
func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// toMetricBundle keeps numeric entries and drops everything else.
func toMetricBundle(raw map[string]any) MetricBundle {
	if raw == nil {
		return nil
	}
	bundle := make(MetricBundle, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				bundle[name] = f
			}
		case float64:
			bundle[name] = v
		}
	}
	return bundle
}
