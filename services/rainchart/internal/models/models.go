package models

import (
    "bytes"
    "encoding/json"
    "fmt"
    "strconv"
)

// StationReading models one station entry of the display_<metric>/update payload.
type StationReading struct {
    StationID Text      `json:"station_id"`
    Rain      []float64 `json:"rain"`
    Temp      []float64 `json:"temp,omitempty"`
    Hours     []Text    `json:"hours"`
    Color     string    `json:"color"`

    hasStationID bool
}

// UnmarshalJSON records whether station_id was sent. An empty string counts
// as sent; an absent key or null does not.
func (r *StationReading) UnmarshalJSON(data []byte) error {
    type plain StationReading
    var keys struct {
        StationID json.RawMessage `json:"station_id"`
    }
    if err := json.Unmarshal(data, &keys); err != nil {
        return err
    }
    if err := json.Unmarshal(data, (*plain)(r)); err != nil {
        return err
    }
    id := bytes.TrimSpace(keys.StationID)
    r.hasStationID = len(id) > 0 && !bytes.Equal(id, []byte("null"))
    return nil
}

// HasStationID reports whether the decoded reading carried a station_id.
func (r StationReading) HasStationID() bool {
    return r.hasStationID
}

// Series returns the values of the named metric ("rain" or "temp").
func (r StationReading) Series(metric string) []float64 {
    if metric == "temp" {
        return r.Temp
    }
    return r.Rain
}

// HourLabels returns the hour labels as plain strings.
func (r StationReading) HourLabels() []string {
    out := make([]string, len(r.Hours))
    for i, h := range r.Hours {
        out[i] = string(h)
    }
    return out
}

// Text is a JSON scalar kept in its textual form. The upstream feed sends
// station ids and hour labels either as numbers or as strings.
type Text string

// UnmarshalJSON accepts strings, numbers and booleans.
func (t *Text) UnmarshalJSON(data []byte) error {
    data = bytes.TrimSpace(data)
    if len(data) == 0 || bytes.Equal(data, []byte("null")) {
        *t = ""
        return nil
    }
    switch data[0] {
    case '"':
        var s string
        if err := json.Unmarshal(data, &s); err != nil {
            return err
        }
        *t = Text(s)
        return nil
    case '{', '[':
        return fmt.Errorf("expected scalar, got %s", data)
    }
    if bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte("false")) {
        *t = Text(data)
        return nil
    }
    var n json.Number
    if err := json.Unmarshal(data, &n); err != nil {
        return err
    }
    *t = Text(normalizeNumber(n))
    return nil
}

// normalizeNumber renders integral numbers without a fraction, the way a
// browser stringifies them (1.0 -> "1").
func normalizeNumber(n json.Number) string {
    if _, err := n.Int64(); err == nil {
        return n.String()
    }
    f, err := n.Float64()
    if err != nil {
        return n.String()
    }
    return strconv.FormatFloat(f, 'f', -1, 64)
}
