package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"weather-backend/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	app.Post("/locations/", func(c *fiber.Ctx) error {
		var req locationCreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc, err := service.CreateLocation(weather.Location{
			City:      req.City,
			Country:   req.Country,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		})
		if err != nil {
			if errors.Is(err, weather.ErrCityExists) {
				return fiber.NewError(fiber.StatusBadRequest, "City already registered")
			}
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(loc)
	})

	app.Get("/locations/", func(c *fiber.Ctx) error {
		locs, err := service.Locations(c.QueryInt("skip", 0), c.QueryInt("limit", 100))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(locs)
	})

	app.Delete("/locations/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid location id")
		}
		if err := service.DeleteLocation(uint(id)); err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Location not found")
			}
			return httpError(err)
		}
		return c.JSON(fiber.Map{"message": "Location and associated records deleted successfully"})
	})

	app.Get("/weather/current/:city", func(c *fiber.Ctx) error {
		lat, lon, err := parseCoords(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		conditions, err := service.CurrentWeather(c.UserContext(), c.Params("city"), lat, lon)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(conditions)
	})

	app.Get("/weather/forecast/:city", func(c *fiber.Ctx) error {
		lat, lon, err := parseCoords(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		days := c.QueryInt("days", 5)
		if days < 1 || days > 5 {
			return fiber.NewError(fiber.StatusBadRequest, "days must be between 1 and 5")
		}

		entries, err := service.Forecast(c.UserContext(), c.Params("city"), lat, lon, days)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(entries)
	})

	app.Get("/weather/past_searches/:city", func(c *fiber.Ctx) error {
		start, end, err := parseDateRange(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		recs, err := service.WeatherRecords(c.Params("city"), start, end, c.QueryInt("skip", 0), c.QueryInt("limit", 100))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(recs)
	})

	app.Put("/weather/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid record id")
		}

		var req recordUpdateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := service.UpdateWeatherRecord(uint(id), req.Temperature, req.Description)
		if err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Weather record not found")
			}
			return httpError(err)
		}
		return c.JSON(rec)
	})

	app.Delete("/weather/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid record id")
		}
		if err := service.DeleteWeatherRecord(uint(id)); err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Weather record not found")
			}
			return httpError(err)
		}
		return c.JSON(fiber.Map{"message": "Weather record deleted successfully"})
	})

	app.Get("/export/:city", func(c *fiber.Ctx) error {
		rows, err := service.Export(c.Params("city"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(rows)
	})

	app.Get("/weather/historical/:city", func(c *fiber.Ctx) error {
		timestampStr := c.Query("timestamp")
		if timestampStr == "" {
			return fiber.NewError(fiber.StatusBadRequest, "timestamp query parameter is required")
		}
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "timestamp must be unix seconds")
		}

		lat, lon, err := parseCoords(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := service.HistoricalWeather(c.UserContext(), c.Params("city"), timestamp, lat, lon)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(rec)
	})

	app.Get("/historical-weather/:city", func(c *fiber.Ctx) error {
		start, end, err := parseDateRange(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		recs, err := service.HistoricalRecords(c.Params("city"), start, end, c.QueryInt("skip", 0), c.QueryInt("limit", 100))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(recs)
	})

	app.Put("/historical-weather/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid record id")
		}

		var req recordUpdateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := service.UpdateHistoricalRecord(uint(id), req.Temperature, req.Description)
		if err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Historical weather record not found")
			}
			return httpError(err)
		}
		return c.JSON(rec)
	})
}

// locationCreateRequest is the body of POST /locations/.
type locationCreateRequest struct {
	City      string  `json:"city" validate:"required"`
	Country   string  `json:"country" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// recordUpdateRequest is the body of the record update endpoints. Only
// temperature and description are updatable.
type recordUpdateRequest struct {
	Temperature float64 `json:"temperature"`
	Description string  `json:"description" validate:"required"`
}

// httpError maps service errors onto HTTP statuses. Upstream failures carry
// the underlying message through to the caller.
func httpError(err error) error {
	switch {
	case errors.Is(err, weather.ErrUpstream):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, weather.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

// parseCoords reads optional lat/lon query parameters. Both must be present
// and in range for coordinates to take effect.
func parseCoords(c *fiber.Ctx) (*float64, *float64, error) {
	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		return nil, nil, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, nil, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, nil, errors.New("lon must be a number")
	}
	if lat < -90 || lat > 90 {
		return nil, nil, errors.New("lat must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return nil, nil, errors.New("lon must be between -180 and 180")
	}
	return &lat, &lon, nil
}

// parseDateRange reads optional start_date/end_date query parameters.
func parseDateRange(c *fiber.Ctx) (*time.Time, *time.Time, error) {
	var start, end *time.Time

	if s := c.Query("start_date"); s != "" {
		ts, err := parseTime(s)
		if err != nil {
			return nil, nil, err
		}
		start = &ts
	}
	if s := c.Query("end_date"); s != "" {
		ts, err := parseTime(s)
		if err != nil {
			return nil, nil, err
		}
		end = &ts
	}
	return start, end, nil
}

// parseTime tries RFC3339, a bare date, and Unix seconds, in that order.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, YYYY-MM-DD or unix seconds")
}
