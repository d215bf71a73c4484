package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUpstream marks failures talking to the weather provider: transport
// errors, non-2xx statuses, a missing credential, or absent historical data.
var ErrUpstream = errors.New("weather provider unavailable")

// KelvinToCelsius converts a temperature from Kelvin to Celsius.
func KelvinToCelsius(kelvin float64) float64 {
	return kelvin - 273.15
}

// OpenWeatherClient fetches and normalizes data from OpenWeatherMap.
// Current and forecast responses arrive in Kelvin and are converted here;
// historical data is requested with units=metric and passed through
// unconverted. Keep that asymmetry.
type OpenWeatherClient struct {
	apiKey     string
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker

	baseURL        string
	timemachineURL string
}

// NewOpenWeatherClient creates a client for the OpenWeatherMap API.
func NewOpenWeatherClient(client *http.Client, apiKey string) *OpenWeatherClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenWeatherClient{
		apiKey:         apiKey,
		httpClient:     client,
		circuit:        cb,
		baseURL:        "https://api.openweathermap.org/data/2.5",
		timemachineURL: "https://api.openweathermap.org/data/3.0/onecall/timemachine",
	}
}

// FetchCurrent fetches current weather by coordinates when both are given,
// otherwise by city name.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, city string, lat, lon *float64) (CurrentConditions, error) {
	values := url.Values{}
	values.Set("appid", c.apiKey)
	if lat != nil && lon != nil {
		values.Set("lat", fmt.Sprintf("%f", *lat))
		values.Set("lon", fmt.Sprintf("%f", *lon))
	} else {
		values.Set("q", city)
	}

	body, err := c.doGet(ctx, fmt.Sprintf("%s/weather?%s", c.baseURL, values.Encode()))
	if err != nil {
		return CurrentConditions{}, fmt.Errorf("%w: failed to fetch weather data: %v", ErrUpstream, err)
	}

	var payload struct {
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
			Pressure float64 `json:"pressure"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
		Coord struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coord"`
		Sys struct {
			Country string `json:"country"`
		} `json:"sys"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return CurrentConditions{}, fmt.Errorf("%w: failed to fetch weather data: %v", ErrUpstream, err)
	}

	conditions := CurrentConditions{
		Temperature: KelvinToCelsius(payload.Main.Temp),
		Humidity:    payload.Main.Humidity,
		Pressure:    payload.Main.Pressure,
		Latitude:    payload.Coord.Lat,
		Longitude:   payload.Coord.Lon,
		Country:     payload.Sys.Country,
	}
	if len(payload.Weather) > 0 {
		conditions.Description = payload.Weather[0].Description
		conditions.Icon = payload.Weather[0].Icon
	}
	return conditions, nil
}

// FetchForecast fetches the 3-hourly forecast series and returns the first
// days*8 entries (8 samples per day).
func (c *OpenWeatherClient) FetchForecast(ctx context.Context, city string, lat, lon *float64, days int) ([]ForecastEntry, error) {
	values := url.Values{}
	values.Set("appid", c.apiKey)
	if lat != nil && lon != nil {
		values.Set("lat", fmt.Sprintf("%f", *lat))
		values.Set("lon", fmt.Sprintf("%f", *lon))
	} else {
		values.Set("q", city)
	}

	body, err := c.doGet(ctx, fmt.Sprintf("%s/forecast?%s", c.baseURL, values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch forecast data: %v", ErrUpstream, err)
	}

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp     float64 `json:"temp"`
				Humidity float64 `json:"humidity"`
				Pressure float64 `json:"pressure"`
			} `json:"main"`
			Weather []struct {
				Description string `json:"description"`
				Icon        string `json:"icon"`
			} `json:"weather"`
		} `json:"list"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: failed to fetch forecast data: %v", ErrUpstream, err)
	}

	limit := days * 8
	if limit > len(payload.List) {
		limit = len(payload.List)
	}

	entries := make([]ForecastEntry, 0, limit)
	for _, item := range payload.List[:limit] {
		entry := ForecastEntry{
			Temperature: KelvinToCelsius(item.Main.Temp),
			Humidity:    item.Main.Humidity,
			Pressure:    item.Main.Pressure,
			Timestamp:   time.Unix(item.Dt, 0).UTC(),
		}
		if len(item.Weather) > 0 {
			entry.Description = item.Weather[0].Description
			entry.Icon = item.Weather[0].Icon
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FetchHistorical fetches weather for a past instant. When coordinates are
// absent they are resolved with a current-weather call by city name first.
// The timemachine endpoint is queried with units=metric, so the temperature
// is already Celsius and is not converted again.
func (c *OpenWeatherClient) FetchHistorical(ctx context.Context, city string, timestamp int64, lat, lon *float64) (HistoricalConditions, error) {
	if c.apiKey == "" {
		return HistoricalConditions{}, fmt.Errorf("%w: openweather api key not found", ErrUpstream)
	}

	if lat == nil || lon == nil {
		current, err := c.FetchCurrent(ctx, city, nil, nil)
		if err != nil {
			return HistoricalConditions{}, err
		}
		lat = &current.Latitude
		lon = &current.Longitude
	}

	values := url.Values{}
	values.Set("appid", c.apiKey)
	values.Set("dt", strconv.FormatInt(timestamp, 10))
	values.Set("units", "metric")
	values.Set("lat", fmt.Sprintf("%f", *lat))
	values.Set("lon", fmt.Sprintf("%f", *lon))

	body, err := c.doGet(ctx, fmt.Sprintf("%s?%s", c.timemachineURL, values.Encode()))
	if err != nil {
		return HistoricalConditions{}, fmt.Errorf("%w: failed to fetch historical weather data: %v", ErrUpstream, err)
	}

	var payload struct {
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
		Data []struct {
			Dt       int64   `json:"dt"`
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
			Pressure float64 `json:"pressure"`
			Weather  []struct {
				Description string `json:"description"`
			} `json:"weather"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return HistoricalConditions{}, fmt.Errorf("%w: failed to fetch historical weather data: %v", ErrUpstream, err)
	}

	if len(payload.Data) == 0 {
		return HistoricalConditions{}, fmt.Errorf("%w: no historical data available for the specified time", ErrUpstream)
	}

	entry := payload.Data[0]
	conditions := HistoricalConditions{
		Temperature: entry.Temp,
		Humidity:    entry.Humidity,
		Pressure:    entry.Pressure,
		Timestamp:   time.Unix(entry.Dt, 0).UTC(),
		Latitude:    payload.Lat,
		Longitude:   payload.Lon,
	}
	if len(entry.Weather) > 0 {
		conditions.Description = entry.Weather[0].Description
	}
	return conditions, nil
}

// doGet performs a single GET attempt through the circuit breaker. There is
// no retry or backoff; any failure surfaces to the caller immediately.
func (c *OpenWeatherClient) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}
