// Package weather holds the station observation record and its wire codec.
package weather

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Record is one observation from one station. Field names follow the wire
// contract exactly: a publisher's JSON body and the aggregator's stored
// array both use these tags.
type Record struct {
	ID                string `json:"id" validate:"required"`
	Name              string `json:"name"`
	State             string `json:"state"`
	TimeZone          string `json:"time_zone"`
	LocalDateTime     string `json:"local_date_time"`
	LocalDateTimeFull string `json:"local_date_time_full"`
	Cloud             string `json:"cloud"`
	WindDir           string `json:"wind_dir"`

	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AirTemp   float64 `json:"air_temp"`
	ApparentT float64 `json:"apparent_t"`
	Dewpt     float64 `json:"dewpt"`
	Press     float64 `json:"press"`

	RelHum     int32 `json:"rel_hum"`
	WindSpdKmh int32 `json:"wind_spd_kmh"`
	WindSpdKt  int32 `json:"wind_spd_kt"`

	// ContentServerID is informational only: the publisher identity the
	// pipeline observed for this PUT. It never participates in equality
	// or ordering decisions.
	ContentServerID string `json:"_content_server_id,omitempty"`

	// LastUpdated is assigned by the aggregator at accept time; any value
	// arriving on the wire is overwritten before the record is stored.
	LastUpdated int64 `json:"_last_updated"`
}

var validate = validator.New()

// DecodeError wraps a JSON decode failure so callers can distinguish a
// malformed payload from other internal errors without string matching.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed weather payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a single JSON-object record. Decode failure returns a
// *DecodeError; it never panics.
func Decode(body []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(body, &r); err != nil {
		return Record{}, &DecodeError{Err: err}
	}
	return r, nil
}

// Validate reports whether r satisfies the record invariants required to be
// stored (currently: a non-empty id).
func Validate(r Record) error {
	return validate.Struct(r)
}

// Encode serializes a single record compactly.
func Encode(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// EncodeList serializes a list of records pretty-printed, matching the
// two-space-indent style of the original Gson pretty printer.
func EncodeList(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// ParseKeyValueText parses the content server's flat-file format: one
// "key:value" pair per line, blank lines ignored. Unknown keys are dropped
// silently and malformed numeric fields are left at zero, matching the
// collaborator's tolerant read-whatever-is-there behavior.
func ParseKeyValueText(content string) (Record, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	r := Record{
		ID:                fields["id"],
		Name:              fields["name"],
		State:             fields["state"],
		TimeZone:          fields["time_zone"],
		LocalDateTime:     fields["local_date_time"],
		LocalDateTimeFull: fields["local_date_time_full"],
		Cloud:             fields["cloud"],
		WindDir:           fields["wind_dir"],
	}

	r.Lat = parseFloat(fields["lat"])
	r.Lon = parseFloat(fields["lon"])
	r.AirTemp = parseFloat(fields["air_temp"])
	r.ApparentT = parseFloat(fields["apparent_t"])
	r.Dewpt = parseFloat(fields["dewpt"])
	r.Press = parseFloat(fields["press"])
	r.RelHum = parseInt32(fields["rel_hum"])
	r.WindSpdKmh = parseInt32(fields["wind_spd_kmh"])
	r.WindSpdKt = parseInt32(fields["wind_spd_kt"])

	if r.ID == "" {
		return Record{}, fmt.Errorf("weather data missing required 'id' field")
	}
	return r, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt32(s string) int32 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0
	}
	return int32(v)
}
