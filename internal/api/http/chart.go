package httpapi

import (
	"fmt"
	"math"
	"strings"

	"github.com/i474232898/citibike-dashboard/internal/trips"
)

const (
	chartWidth   = 960
	chartHeight  = 360
	chartPadLeft = 64
	chartPadTop  = 20
	chartPadSide = 64
	chartPadBot  = 48

	maxXLabels = 8
)

// lineChart is the geometry of the dual-axis trips/temperature chart.
type lineChart struct {
	Width, Height int
	PlotLeft      int
	PlotRight     int
	PlotTop       int
	PlotBottom    int

	TripPoints string
	TempPoints string
	HasTemp    bool

	TripMax int
	TempMin float64
	TempMax float64

	XLabels []axisLabel
}

type axisLabel struct {
	X    float64
	Text string
}

// newLineChart lays out the series as two SVG polylines sharing an x axis.
// Trip counts scale from zero on the left axis; temperatures scale between
// their min and max on the right axis.
func newLineChart(s trips.Series) *lineChart {
	c := &lineChart{
		Width:      chartWidth,
		Height:     chartHeight,
		PlotLeft:   chartPadLeft,
		PlotRight:  chartWidth - chartPadSide,
		PlotTop:    chartPadTop,
		PlotBottom: chartHeight - chartPadBot,
		HasTemp:    s.TemperatureAvailable,
	}
	n := len(s.Points)
	if n == 0 {
		return c
	}

	for _, p := range s.Points {
		c.TripMax = max(c.TripMax, p.TripCount)
	}

	var temps []float64
	if c.HasTemp {
		var err error
		if temps, err = s.Temperatures(); err != nil {
			c.HasTemp = false
		} else {
			c.TempMin, c.TempMax = temps[0], temps[0]
			for _, t := range temps {
				c.TempMin = math.Min(c.TempMin, t)
				c.TempMax = math.Max(c.TempMax, t)
			}
		}
	}

	var trip, temp strings.Builder
	step := max(1, n/maxXLabels)
	for i, p := range s.Points {
		x := c.x(i, n)
		fmt.Fprintf(&trip, "%.1f,%.1f ", x, c.scale(float64(p.TripCount), 0, float64(c.TripMax)))
		if c.HasTemp {
			fmt.Fprintf(&temp, "%.1f,%.1f ", x, c.scale(temps[i], c.TempMin, c.TempMax))
		}
		if i%step == 0 || i == n-1 {
			c.XLabels = append(c.XLabels, axisLabel{X: x, Text: p.Date.Format("2006-01-02")})
		}
	}
	c.TripPoints = strings.TrimSpace(trip.String())
	c.TempPoints = strings.TrimSpace(temp.String())
	return c
}

func (c *lineChart) x(i, n int) float64 {
	width := float64(c.PlotRight - c.PlotLeft)
	if n == 1 {
		return float64(c.PlotLeft) + width/2
	}
	return float64(c.PlotLeft) + width*float64(i)/float64(n-1)
}

// scale maps v in [lo, hi] onto the plot's vertical range. A flat range
// draws along the middle.
func (c *lineChart) scale(v, lo, hi float64) float64 {
	height := float64(c.PlotBottom - c.PlotTop)
	if hi <= lo {
		return float64(c.PlotTop) + height/2
	}
	return float64(c.PlotBottom) - height*(v-lo)/(hi-lo)
}

// bar is one row of the horizontal top-stations chart.
type bar struct {
	Label   string
	Count   int
	Percent float64
}

func newBars(ranking []trips.StationCount) []bar {
	if len(ranking) == 0 {
		return nil
	}
	top := 0
	for _, r := range ranking {
		top = max(top, r.TripCount)
	}
	out := make([]bar, len(ranking))
	for i, r := range ranking {
		pct := 0.0
		if top > 0 {
			pct = 100 * float64(r.TripCount) / float64(top)
		}
		out[i] = bar{Label: r.StationName, Count: r.TripCount, Percent: pct}
	}
	return out
}
