package http

import (
	"math"
	"strconv"
	"time"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

// number is a float64 whose JSON form is null when it is not finite. Binary
// encodings carry the raw value, NaN included.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

type errorResponse struct {
	Error string `json:"error"`
}

type snapshotResponse struct {
	Variable  domain.Metadata `json:"variable"`
	Step      int             `json:"step"`
	ValidTime time.Time       `json:"valid_time"`
	Lat       []float64       `json:"lat"`
	Lon       []float64       `json:"lon"`
	Values    [][]number      `json:"values"`
	ColorMin  float64         `json:"color_min"`
	ColorMax  float64         `json:"color_max"`
	Colormap  string          `json:"colormap"`
}

func newSnapshotResponse(s domain.Snapshot) snapshotResponse {
	rows := make([][]number, len(s.Values))
	for i, row := range s.Values {
		rows[i] = make([]number, len(row))
		for j, v := range row {
			rows[i][j] = number(v)
		}
	}
	return snapshotResponse{
		Variable:  s.Variable,
		Step:      s.Step,
		ValidTime: s.ValidTime,
		Lat:       s.Lat,
		Lon:       s.Lon,
		Values:    rows,
		ColorMin:  s.ColorMin,
		ColorMax:  s.ColorMax,
		Colormap:  colormapFor(s.Variable.Name),
	}
}

type seriesPoint struct {
	ValidTime time.Time `json:"valid_time"`
	Value     number    `json:"value"`
}

type seriesResponse struct {
	Variable     domain.Metadata `json:"variable"`
	RequestedLat float64         `json:"requested_lat"`
	RequestedLon float64         `json:"requested_lon"`
	Lat          float64         `json:"lat"`
	Lon          float64         `json:"lon"`
	Points       []seriesPoint   `json:"points"`
}

func newSeriesResponse(ps domain.PointSeries) seriesResponse {
	points := make([]seriesPoint, len(ps.Points))
	for i, p := range ps.Points {
		points[i] = seriesPoint{ValidTime: p.ValidTime, Value: number(p.Value)}
	}
	return seriesResponse{
		Variable:     ps.Variable,
		RequestedLat: ps.RequestedLat,
		RequestedLon: ps.RequestedLon,
		Lat:          ps.Lat,
		Lon:          ps.Lon,
		Points:       points,
	}
}

type statsResponse struct {
	domain.Statistics
	Table []domain.NamedValue `json:"table"`
}

// colormaps holds the preferred palette per variable name.
var colormaps = map[string]string{
	"prec":          "Blues",
	"precipitation": "Blues",
	"temperature":   "RdYlBu_r",
	"soil_moisture": "BrBG",
}

const defaultColormap = "turbo_r"

func colormapFor(variable string) string {
	if c, ok := colormaps[variable]; ok {
		return c
	}
	return defaultColormap
}
