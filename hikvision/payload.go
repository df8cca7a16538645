package hikvision

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/warp/attendance-bridge/attendance"
)

// =============================================================================
// EVENT
// =============================================================================

// Source names the encoding an event was extracted from.
type Source string

const (
	SourceJSON      Source = "json"
	SourceForm      Source = "form"
	SourceMultipart Source = "multipart"
	SourceXML       Source = "xml"
	SourceEmpty     Source = "empty"
)

// Event is the vendor-neutral content of one terminal delivery.
type Event struct {
	EmployeeNo       string `json:"employeeNo"`
	Name             string `json:"name,omitempty"`
	Time             string `json:"time"`
	AttendanceStatus string `json:"attendanceStatus,omitempty"`
	EventType        string `json:"eventType,omitempty"`
	IPAddress        string `json:"ipAddress,omitempty"`
	Source           Source `json:"source"`
}

// TerminalEvent converts the delivery into the engine's input.
func (e Event) TerminalEvent() attendance.TerminalEvent {
	ev := attendance.TerminalEvent{
		EmployeeRef:  strings.TrimSpace(e.EmployeeNo),
		EmployeeName: e.Name,
		VendorAction: e.AttendanceStatus,
	}
	if e.Time != "" {
		ev.RawTime = WallClock(e.Time)
	}
	return ev
}

// =============================================================================
// PARSE
// =============================================================================

// EventLogField is the form/multipart field carrying the JSON event.
const EventLogField = "event_log"

// Parse extracts the event from a request body. A well-formed body without
// employee data yields an Event with empty fields, not an error; a body that
// cannot be decoded at all is an ErrInvalidRequest.
func Parse(contentType string, body []byte) (Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Event{Source: SourceEmpty}, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}

	switch {
	case mediaType == "multipart/form-data" || mediaType == "multipart/mixed":
		return parseMultipart(body, params["boundary"])
	case mediaType == "application/x-www-form-urlencoded":
		return parseForm(body)
	case strings.HasSuffix(mediaType, "/xml"):
		return parseXML(body)
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return parseJSON(body, SourceJSON)
	}

	// Devices are not consistent about Content-Type; sniff the body.
	switch trimmed := bytes.TrimSpace(body); trimmed[0] {
	case '{':
		return parseJSON(trimmed, SourceJSON)
	case '<':
		return parseXML(trimmed)
	}
	return Event{}, badPayload("unsupported content type %q", contentType)
}

func badPayload(format string, args ...any) error {
	return fmt.Errorf("%w: %s", attendance.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// =============================================================================
// JSON
// =============================================================================

// flexString accepts a JSON string or number. Firmware versions disagree
// on whether employeeNo is quoted.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
	case '{', '[':
		return nil
	default:
		*s = flexString(b)
	}
	return nil
}

type accessEvent struct {
	EmployeeNoString flexString `json:"employeeNoString"`
	EmployeeNo       flexString `json:"employeeNo"`
	Name             string     `json:"name"`
	AttendanceStatus string     `json:"attendanceStatus"`
	Time             string     `json:"time"`
}

func (a accessEvent) employee() string {
	if a.EmployeeNoString != "" {
		return string(a.EmployeeNoString)
	}
	return string(a.EmployeeNo)
}

type envelope struct {
	accessEvent

	DateTime              string       `json:"dateTime"`
	EventType             string       `json:"eventType"`
	IPAddress             string       `json:"ipAddress"`
	AccessControllerEvent *accessEvent `json:"AccessControllerEvent"`
}

func parseJSON(body []byte, source Source) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, badPayload("decode event json: %v", err)
	}
	return env.event(source), nil
}

// event prefers the nested AccessControllerEvent and falls back to the flat
// fields when it carries no employee.
func (env envelope) event(source Source) Event {
	ev := Event{EventType: env.EventType, IPAddress: env.IPAddress, Source: source}

	if ace := env.AccessControllerEvent; ace != nil {
		ev.EmployeeNo = ace.employee()
		ev.Name = ace.Name
		ev.AttendanceStatus = ace.AttendanceStatus
		ev.Time = firstNonEmpty(ace.Time, env.DateTime)
	}
	if ev.EmployeeNo == "" {
		ev.EmployeeNo = env.employee()
		ev.Name = env.Name
		ev.AttendanceStatus = env.AttendanceStatus
		ev.Time = firstNonEmpty(env.Time, env.DateTime)
	}
	return ev
}

// =============================================================================
// FORM
// =============================================================================

func parseForm(body []byte) (Event, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return Event{}, badPayload("decode form: %v", err)
	}
	if raw := values.Get(EventLogField); raw != "" {
		return parseJSON([]byte(raw), SourceForm)
	}
	return Event{
		EmployeeNo:       firstNonEmpty(values.Get("employeeNoString"), values.Get("employeeNo")),
		Name:             values.Get("name"),
		AttendanceStatus: values.Get("attendanceStatus"),
		Time:             firstNonEmpty(values.Get("time"), values.Get("dateTime")),
		Source:           SourceForm,
	}, nil
}

// =============================================================================
// MULTIPART
// =============================================================================

// maxPartSize bounds a single text part. Snapshot parts are skipped unread.
const maxPartSize = 1 << 20

func parseMultipart(body []byte, boundary string) (Event, error) {
	if boundary == "" {
		return Event{}, badPayload("multipart body without boundary")
	}
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Event{}, badPayload("read multipart: %v", err)
		}
		if strings.HasPrefix(part.Header.Get("Content-Type"), "image/") {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, maxPartSize))
		if err != nil {
			return Event{}, badPayload("read multipart part %q: %v", part.FormName(), err)
		}
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			continue
		}

		named := part.FormName() == EventLogField
		switch {
		case trimmed[0] == '<' && bytes.Contains(trimmed, []byte("EventNotificationAlert")):
			ev, err := parseXML(trimmed)
			ev.Source = SourceMultipart
			return ev, err
		case named || bytes.Contains(trimmed, []byte("AccessControllerEvent")):
			return parseJSON(trimmed, SourceMultipart)
		}
	}
	return Event{Source: SourceMultipart}, nil
}

// =============================================================================
// XML (ISAPI EventNotificationAlert)
// =============================================================================

type xmlAccessEvent struct {
	EmployeeNoString string `xml:"employeeNoString"`
	Name             string `xml:"name"`
	AttendanceStatus string `xml:"attendanceStatus"`
	CurrentVerify    string `xml:"currentVerifyMode"`
}

type notificationAlert struct {
	XMLName    xml.Name `xml:"EventNotificationAlert"`
	IPAddress  string   `xml:"ipAddress"`
	DateTime   string   `xml:"dateTime"`
	EventType  string   `xml:"eventType"`
	EventState string   `xml:"eventState"`

	// Some firmware puts the access fields at the top level.
	EmployeeNoString string `xml:"employeeNoString"`
	Name             string `xml:"name"`
	AttendanceStatus string `xml:"attendanceStatus"`

	AccessControllerEvent xmlAccessEvent `xml:"AccessControllerEvent"`
}

func parseXML(body []byte) (Event, error) {
	var alert notificationAlert
	if err := xml.Unmarshal(body, &alert); err != nil {
		return Event{}, badPayload("decode event xml: %v", err)
	}
	ace := alert.AccessControllerEvent
	return Event{
		EmployeeNo:       firstNonEmpty(ace.EmployeeNoString, alert.EmployeeNoString),
		Name:             firstNonEmpty(ace.Name, alert.Name),
		AttendanceStatus: firstNonEmpty(ace.AttendanceStatus, alert.AttendanceStatus),
		Time:             alert.DateTime,
		EventType:        alert.EventType,
		IPAddress:        alert.IPAddress,
		Source:           SourceXML,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
