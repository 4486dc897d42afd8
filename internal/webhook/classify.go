// Package webhook classifies platform deliveries into the events the
// reconciliation engine acts on.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
)

const (
	ToolBookAppointment   = "book_appointment"
	ToolCheckAvailability = "check_availability"

	typeEndOfCall    = "end-of-call-report"
	typeStatusUpdate = "status-update"
	typeCallStart    = "call-start"
	statusInProgress = "in-progress"
)

var (
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrMissingField     = errors.New("missing required field")
)

// MissingFieldError lists the required booking arguments that were absent.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Fields, ", "))
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type envelope struct {
	Message *message `json:"message"`
}

type message struct {
	Type            string         `json:"type"`
	Status          string         `json:"status"`
	ToolCalls       []toolCall     `json:"toolCalls"`
	ToolCallList    []toolCall     `json:"toolCallList"`
	Call            *session       `json:"call"`
	Chat            *session       `json:"chat"`
	Customer        map[string]any `json:"customer"`
	VariableValues  map[string]any `json:"variableValues"`
	DurationSeconds flexFloat      `json:"durationSeconds"`
	Duration        flexFloat      `json:"duration"`
	DurationMs      flexFloat      `json:"durationMs"`
	StartedAt       string         `json:"startedAt"`
	EndedAt         string         `json:"endedAt"`
}

type session struct {
	ID                 string         `json:"id"`
	StartedAt          string         `json:"startedAt"`
	EndedAt            string         `json:"endedAt"`
	Customer           map[string]any `json:"customer"`
	AssistantOverrides *struct {
		VariableValues map[string]any `json:"variableValues"`
	} `json:"assistantOverrides"`
}

func (s *session) id() string {
	if s == nil {
		return ""
	}
	return s.ID
}

type toolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// flexFloat accepts a JSON number or a numeric string. Anything else
// decodes as unset.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f.Value, f.Set = v, true
	return nil
}

// Classify decides what a raw webhook body means. Only undecodable JSON or
// a body without a message object is an error; anything unrecognised is an
// IgnoredEvent.
func Classify(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Message == nil {
		return nil, fmt.Errorf("%w: message object is required", ErrMalformedPayload)
	}
	msg := env.Message

	if calls := msg.toolCalls(); len(calls) > 0 {
		return classifyToolCall(msg, calls[0])
	}

	switch {
	case msg.Type == typeEndOfCall:
		return EndOfCallEvent{
			CallID:          msg.Call.id(),
			DurationSeconds: msg.duration(),
			CallerEmail:     firstString("email", msg.Customer, msg.Call.customer()),
			Raw:             body,
		}, nil
	case msg.Type == typeCallStart, msg.Type == typeStatusUpdate && msg.Status == statusInProgress:
		vars := []map[string]any{msg.Call.variables(), msg.VariableValues}
		customers := []map[string]any{msg.Customer, msg.Call.customer()}
		return CallStartEvent{
			CallID:   msg.Call.id(),
			Email:    firstString("email", append(vars, customers...)...),
			UserName: firstNonEmpty(firstString("user_name", vars...), firstString("name", append(vars, customers...)...)),
			UserID:   firstString("user_id", vars...),
		}, nil
	}

	kind := msg.Type
	if kind == "" {
		kind = "unknown"
	}
	return IgnoredEvent{Type: msg.Type, Reason: "unhandled event type " + kind}, nil
}

func (m *message) toolCalls() []toolCall {
	if len(m.ToolCalls) > 0 {
		return m.ToolCalls
	}
	return m.ToolCallList
}

func classifyToolCall(msg *message, call toolCall) (Event, error) {
	name := call.Function.Name
	if name != ToolBookAppointment && name != ToolCheckAvailability {
		return IgnoredEvent{Type: msg.Type, Reason: "unhandled tool " + name}, nil
	}

	args, err := decodeArguments(call.Function.Arguments)
	if err != nil {
		return nil, err
	}

	if name == ToolCheckAvailability {
		return AvailabilityEvent{
			ToolCallID:      call.ID,
			Session:         resolveSession(msg, args["call_id"], args["chat_id"]),
			AppointmentTime: args["appointment_time"],
		}, nil
	}

	booking := BookingArgs{
		PatientName:     args["patient_name"],
		DoctorName:      args["doctor_name"],
		AppointmentTime: args["appointment_time"],
		PatientEmail:    args["patient_email"],
		PatientPhone:    args["patient_phone"],
		PatientAddress:  args["patient_address"],
		Reason:          args["reason"],
		CallID:          args["call_id"],
		ChatID:          args["chat_id"],
	}
	if err := validate.Struct(booking); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return nil, &MissingFieldError{Fields: fields}
		}
		return nil, fmt.Errorf("validate booking arguments: %w", err)
	}

	return BookingEvent{
		ToolCallID: call.ID,
		Session:    resolveSession(msg, booking.CallID, booking.ChatID),
		Args:       booking,
	}, nil
}

// decodeArguments accepts an object or a JSON-encoded object string and
// flattens the values to trimmed strings.
func decodeArguments(raw json.RawMessage) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]string{}, nil
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("%w: tool arguments: %v", ErrMalformedPayload, err)
		}
		if strings.TrimSpace(encoded) == "" {
			return map[string]string{}, nil
		}
		raw = []byte(encoded)
	}

	var values map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: tool arguments: %v", ErrMalformedPayload, err)
	}

	out := make(map[string]string, len(values))
	for k, v := range values {
		if s := stringify(v); s != "" {
			out[k] = s
		}
	}
	return out, nil
}

func resolveSession(msg *message, argCallID, argChatID string) Session {
	switch {
	case msg.Call.id() != "":
		return Session{CallID: msg.Call.id(), Source: appointment.SourceCall}
	case msg.Chat.id() != "":
		return Session{ChatID: msg.Chat.id(), Source: appointment.SourceChat}
	case argCallID != "":
		return Session{CallID: argCallID, Source: appointment.SourceCall}
	case argChatID != "":
		return Session{ChatID: argChatID, Source: appointment.SourceChat}
	default:
		return Session{Source: appointment.SourceUnknown}
	}
}

// duration prefers the reported seconds and falls back to the call's
// timestamps.
func (m *message) duration() float64 {
	switch {
	case m.DurationSeconds.Set:
		return nonNegative(m.DurationSeconds.Value)
	case m.Duration.Set:
		return nonNegative(m.Duration.Value)
	case m.DurationMs.Set:
		return nonNegative(m.DurationMs.Value / 1000)
	}

	started, ended := m.StartedAt, m.EndedAt
	if m.Call != nil {
		started = firstNonEmpty(started, m.Call.StartedAt)
		ended = firstNonEmpty(ended, m.Call.EndedAt)
	}
	if started == "" || ended == "" {
		return 0
	}
	start, err1 := time.Parse(time.RFC3339Nano, started)
	end, err2 := time.Parse(time.RFC3339Nano, ended)
	if err1 != nil || err2 != nil {
		return 0
	}
	return nonNegative(end.Sub(start).Seconds())
}

func (s *session) variables() map[string]any {
	if s == nil || s.AssistantOverrides == nil {
		return nil
	}
	return s.AssistantOverrides.VariableValues
}

func (s *session) customer() map[string]any {
	if s == nil {
		return nil
	}
	return s.Customer
}

func firstString(key string, maps ...map[string]any) string {
	for _, m := range maps {
		if m == nil {
			continue
		}
		if s := stringify(m[key]); s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
