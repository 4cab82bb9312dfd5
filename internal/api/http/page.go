package httpapi

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/citibike-dashboard/internal/trips"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

// mapHeight is the fixed pixel height of the embedded map document.
const mapHeight = 600

var dashboardTmpl = template.Must(template.New("dashboard.html").Funcs(template.FuncMap{
	"fixed": func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) },
}).ParseFS(templateFS, "templates/dashboard.html"))

type pageData struct {
	Dashboard trips.Dashboard
	Pipelines []trips.Pipeline
	Seasons   []trips.Season
	MapHeight int
	Chart     *lineChart
	Bars      []bar
}

func dashboardPage(service *trips.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseSelection(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		d, err := service.Dashboard(c.UserContext(), q.Pipeline, trips.Season(q.Season))
		if err != nil {
			return toHTTPError(err)
		}

		data := pageData{
			Dashboard: d,
			Pipelines: service.Pipelines(),
			Seasons:   append([]trips.Season{trips.SeasonAll}, d.Seasons...),
			MapHeight: mapHeight,
		}
		if d.Series.OK() {
			data.Chart = newLineChart(d.Series.Value)
		}
		if d.TopStations.OK() {
			data.Bars = newBars(d.TopStations.Value)
		}

		var buf bytes.Buffer
		if err := dashboardTmpl.Execute(&buf, data); err != nil {
			return err
		}

		c.Type("html", "utf-8")
		return c.Send(buf.Bytes())
	}
}
