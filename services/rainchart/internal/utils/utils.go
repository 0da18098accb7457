package utils

import (
    "fmt"
    "math"

    "github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/chart"
    "github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/models"
)

// SeriesLabel is the dataset label shown for a station.
func SeriesLabel(stationID models.Text) string {
    return "Station " + string(stationID)
}

// BuildDatasets converts feed readings into line datasets, in server order.
func BuildDatasets(readings []models.StationReading, metric string) []chart.Dataset {
    datasets := make([]chart.Dataset, 0, len(readings))
    for i, r := range readings {
        color := r.Color
        if color == "" {
            color = chart.PaletteColor(i)
        }
        datasets = append(datasets, chart.Dataset{
            Type:            "line",
            Label:           SeriesLabel(r.StationID),
            Data:            append([]float64{}, r.Series(metric)...),
            Fill:            false,
            BackgroundColor: color,
            BorderColor:     color,
        })
    }
    return datasets
}

// LongestHours returns the hour labels of the reading with the most labels.
// Ties keep the first one in response order.
func LongestHours(readings []models.StationReading) []string {
    longest := 0
    hours := []string{}
    for _, r := range readings {
        if len(r.Hours) > longest {
            longest = len(r.Hours)
            hours = r.HourLabels()
        }
    }
    return hours
}

// BuildChartData is the whole per-poll transformation.
func BuildChartData(readings []models.StationReading, metric string) chart.Data {
    return chart.Data{
        Labels:   LongestHours(readings),
        Datasets: BuildDatasets(readings, metric),
    }
}

// SeriesSummary is a short log-friendly description of the chart data.
func SeriesSummary(d chart.Data) string {
    total := 0
    peak := math.Inf(-1)
    for _, ds := range d.Datasets {
        total += len(ds.Data)
        for _, v := range ds.Data {
            peak = math.Max(peak, v)
        }
    }
    if math.IsInf(peak, -1) {
        return fmt.Sprintf("series=%d labels=%d points=0", len(d.Datasets), len(d.Labels))
    }
    return fmt.Sprintf("series=%d labels=%d points=%d peak=%.3f", len(d.Datasets), len(d.Labels), total, peak)
}
