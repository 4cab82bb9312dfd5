package httpapi

import (
	"errors"
	"log"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/citibike-dashboard/internal/trips"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *trips.Service) {
	app.Get("/", dashboardPage(service))

	v1 := app.Group("/api/v1")

	v1.Get("/seasons", func(c *fiber.Ctx) error {
		seasons, err := service.Seasons(c.UserContext())
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(append([]trips.Season{trips.SeasonAll}, seasons...))
	})

	v1.Get("/pipelines", func(c *fiber.Ctx) error {
		return c.JSON(service.Pipelines())
	})

	v1.Get("/series", func(c *fiber.Ctx) error {
		q, err := parseSelection(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		series, err := service.Series(c.UserContext(), q.Pipeline, trips.Season(q.Season))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{
			"season":               seasonOrAll(q.Season),
			"points":               series.Points,
			"temperatureAvailable": series.TemperatureAvailable,
		})
	})

	v1.Get("/stations/top", func(c *fiber.Ctx) error {
		var q topQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		limit := 0
		if q.Limit != nil {
			limit = *q.Limit
		}
		top, err := service.TopStations(c.UserContext(), q.Pipeline, trips.Season(q.Season), limit)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{
			"season":   seasonOrAll(q.Season),
			"stations": top,
		})
	})

	v1.Get("/stations/coordinates", func(c *fiber.Ctx) error {
		q, err := parseSelection(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		coords, err := service.Coordinates(c.UserContext(), q.Pipeline, trips.Season(q.Season))
		if err != nil {
			return toHTTPError(err)
		}
		if coords.Stations == nil {
			coords.Stations = []trips.StationCoordinate{}
		}
		return c.JSON(fiber.Map{
			"season":   seasonOrAll(q.Season),
			"stations": coords.Stations,
			"excluded": coords.Excluded,
		})
	})

	v1.Get("/dashboard", func(c *fiber.Ctx) error {
		q, err := parseSelection(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		d, err := service.Dashboard(c.UserContext(), q.Pipeline, trips.Season(q.Season))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(d)
	})

	v1.Get("/dataset", func(c *fiber.Ctx) error {
		info, err := service.Dataset(c.UserContext())
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(info)
	})

	v1.Post("/dataset/invalidate", func(c *fiber.Ctx) error {
		service.Invalidate()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "invalidated"})
	})
}

// selectionQuery holds the season and pipeline selectors shared by most endpoints.
type selectionQuery struct {
	Season   string `validate:"omitempty,printascii,max=64"`
	Pipeline string `validate:"omitempty,max=32"`
}

func parseSelection(c *fiber.Ctx) (selectionQuery, error) {
	var q selectionQuery

	q.Season = c.Query("season")
	q.Pipeline = c.Query("pipeline")

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// topQuery holds query parameters for the top stations endpoint.
type topQuery struct {
	selectionQuery
	Limit *int `validate:"omitempty,min=1,max=100"`
}

func (t *topQuery) bind(c *fiber.Ctx) error {
	sel, err := parseSelection(c)
	if err != nil {
		return err
	}
	t.selectionQuery = sel

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.New("limit must be an integer")
		}
		t.Limit = &n
	}

	return validate.Struct(t)
}

func seasonOrAll(s string) trips.Season {
	if s == "" {
		return trips.SeasonAll
	}
	return trips.Season(s)
}

// toHTTPError maps service errors onto HTTP status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, trips.ErrUnknownPipeline):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, trips.ErrResourceNotFound):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, trips.ErrRawTripsUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, trips.ErrParse), errors.Is(err, trips.ErrMissingCoordinates):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("ERROR: request failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to compute dashboard data")
	}
}
