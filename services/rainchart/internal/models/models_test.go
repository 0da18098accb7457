package models

import (
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestStationReadingAcceptsNumericAndStringScalars(t *testing.T) {
    var readings []StationReading
    err := json.Unmarshal([]byte(`[
        {"station_id": 1, "rain": [1, 2.5], "temp": [20], "hours": [0, 1.0], "color": "rgb(255, 0, 0)"},
        {"station_id": "north", "rain": [], "hours": ["00:00"], "color": "#00f"}
    ]`), &readings)
    require.NoError(t, err)
    require.Len(t, readings, 2)

    assert.Equal(t, Text("1"), readings[0].StationID)
    assert.Equal(t, []string{"0", "1"}, readings[0].HourLabels())
    assert.Equal(t, []float64{1, 2.5}, readings[0].Series("rain"))
    assert.Equal(t, []float64{20}, readings[0].Series("temp"))

    assert.Equal(t, Text("north"), readings[1].StationID)
    assert.Equal(t, []string{"00:00"}, readings[1].HourLabels())
    assert.NotNil(t, readings[1].Rain)
    assert.Nil(t, readings[1].Temp)
}

func TestTextFractionalNumberKeepsFraction(t *testing.T) {
    var v Text
    require.NoError(t, json.Unmarshal([]byte(`0.5`), &v))
    assert.Equal(t, Text("0.5"), v)
}

func TestTextRejectsObjects(t *testing.T) {
    var v Text
    assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
    assert.Error(t, json.Unmarshal([]byte(`[1]`), &v))
}

func TestStationReadingTracksStationIDPresence(t *testing.T) {
    var readings []StationReading
    err := json.Unmarshal([]byte(`[
        {"station_id": "", "rain": [1], "hours": [0]},
        {"station_id": null, "rain": [1], "hours": [0]},
        {"rain": [1], "hours": [0]},
        {"station_id": 7, "rain": [1], "hours": [0]}
    ]`), &readings)
    require.NoError(t, err)
    require.Len(t, readings, 4)

    assert.True(t, readings[0].HasStationID())
    assert.Equal(t, Text(""), readings[0].StationID)
    assert.False(t, readings[1].HasStationID())
    assert.False(t, readings[2].HasStationID())
    assert.True(t, readings[3].HasStationID())
    assert.Equal(t, []float64{1}, readings[3].Rain)
}
