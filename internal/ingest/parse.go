package ingest

import (
	"bytes"
	"encoding/xml"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/velagate/velagate-core/internal/credential"
)

// maxSnapshotBytes bounds how much inbound image data is kept (8 MB).
const maxSnapshotBytes = 8 << 20

// eventNotificationAlert is the XML push body emitted by ANPR cameras.
type eventNotificationAlert struct {
	XMLName    xml.Name `xml:"EventNotificationAlert"`
	IPAddress  string   `xml:"ipAddress"`
	MACAddress string   `xml:"macAddress"`
	DateTime   string   `xml:"dateTime"`
	EventType  string   `xml:"eventType"`
	ANPR       struct {
		LicensePlate    string `xml:"licensePlate"`
		ConfidenceLevel int    `xml:"confidenceLevel"`
		VehicleType     string `xml:"vehicleType"`
		VehicleColor    string `xml:"vehicleColor"`
		PlateListType   string `xml:"plateListType"`
	} `xml:"ANPR"`
}

// timeLayouts are the timestamp formats devices actually send.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseDeviceTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil && epoch > 0 {
		return time.Unix(epoch, 0).UTC()
	}
	return time.Time{}
}

// ParsePayload dispatches an inbound body to the parser matching its
// content type. Anything unparseable comes back as a *ParseError.
func ParsePayload(contentType string, body []byte) (*RawEvent, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}

	switch {
	case strings.Contains(mediaType, "xml"):
		return ParseXML(body)
	case mediaType == "multipart/form-data":
		return ParseMultipart(body, params["boundary"])
	case mediaType == "application/x-www-form-urlencoded":
		return ParseForm(body)
	default:
		// Cameras are sloppy with content types; sniff an XML body.
		if bytes.HasPrefix(bytes.TrimSpace(body), []byte("<")) {
			return ParseXML(body)
		}
		return nil, &ParseError{Reason: "unsupported content type " + contentType, Payload: body}
	}
}

// ParseXML parses an EventNotificationAlert push body.
func ParseXML(body []byte) (*RawEvent, error) {
	var alert eventNotificationAlert
	if err := xml.Unmarshal(body, &alert); err != nil {
		return nil, &ParseError{Reason: "malformed xml", Payload: body, Err: err}
	}

	raw := &RawEvent{
		Kind:      KindCredential,
		Timestamp: parseDeviceTime(alert.DateTime),
		DeviceIP:  alert.IPAddress,
		DeviceMAC: alert.MACAddress,
	}
	if raw.DeviceIdentifier() == "" {
		return nil, &ParseError{Reason: "xml body carries no device identity", Payload: body}
	}

	switch strings.ToLower(alert.EventType) {
	case "dooropen":
		raw.Kind = KindDoorOpen
		return raw, nil
	case "doorclose":
		raw.Kind = KindDoorClose
		return raw, nil
	}

	raw.CredentialType = credential.TypePlate
	raw.CredentialValue = alert.ANPR.LicensePlate
	raw.Confidence = alert.ANPR.ConfidenceLevel
	raw.ListMembership = alert.ANPR.PlateListType

	attrs := make(map[string]string)
	if alert.ANPR.VehicleType != "" {
		attrs["vehicle_type"] = alert.ANPR.VehicleType
	}
	if alert.ANPR.VehicleColor != "" {
		attrs["vehicle_color"] = alert.ANPR.VehicleColor
	}
	if len(attrs) > 0 {
		raw.VehicleAttributes = attrs
	}
	return raw, nil
}

// ParseForm parses a URL-encoded metadata body.
func ParseForm(body []byte) (*RawEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, &ParseError{Reason: "malformed form body", Payload: body, Err: err}
	}
	return rawFromFields(func(key string) string { return values.Get(key) }, body)
}

// ParseMultipart parses a multipart body holding metadata fields plus
// optional binary image parts.
func ParseMultipart(body []byte, boundary string) (*RawEvent, error) {
	if boundary == "" {
		return nil, &ParseError{Reason: "multipart body without boundary", Payload: body}
	}

	fields := make(map[string]string)
	var snapshot []byte
	var snapshotName string

	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Reason: "malformed multipart body", Payload: body, Err: err}
		}

		data, err := io.ReadAll(io.LimitReader(part, maxSnapshotBytes))
		if err != nil {
			return nil, &ParseError{Reason: "reading multipart part", Payload: body, Err: err}
		}
		if part.FileName() != "" {
			snapshot = data
			snapshotName = part.FileName()
			continue
		}
		fields[strings.ToLower(part.FormName())] = string(data)
	}

	raw, err := rawFromFields(func(key string) string { return fields[key] }, body)
	if err != nil {
		return nil, err
	}
	raw.Snapshot = snapshot
	raw.SnapshotName = snapshotName
	return raw, nil
}

// rawFromFields builds a RawEvent from flat form fields. Field names
// follow the device push conventions: ip/mac identify the sender,
// event selects the kind, value (aliases plate/card) carries the
// credential.
func rawFromFields(get func(string) string, payload []byte) (*RawEvent, error) {
	raw := &RawEvent{
		Kind:      KindCredential,
		Timestamp: parseDeviceTime(get("time")),
		DeviceIP:  get("ip"),
		DeviceMAC: get("mac"),
	}
	if raw.DeviceIdentifier() == "" {
		return nil, &ParseError{Reason: "form body carries no device identity", Payload: payload}
	}

	switch strings.ToLower(get("event")) {
	case "door_open":
		raw.Kind = KindDoorOpen
		return raw, nil
	case "door_close":
		raw.Kind = KindDoorClose
		return raw, nil
	}

	value := get("value")
	credType := credential.Type(strings.ToUpper(get("type")))
	if v := get("plate"); value == "" && v != "" {
		value = v
		credType = credential.TypePlate
	}
	if v := get("card"); value == "" && v != "" {
		value = v
		credType = credential.TypeTag
	}
	if credType == "" {
		credType = credential.TypePlate
	}
	if !credType.IsValid() {
		return nil, &ParseError{Reason: "unknown credential type " + string(credType), Payload: payload}
	}

	raw.CredentialValue = value
	raw.CredentialType = credType
	raw.ListMembership = get("list")
	if c, err := strconv.Atoi(get("confidence")); err == nil {
		raw.Confidence = c
	}
	return raw, nil
}
