package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned when a referenced record or location does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCityExists is returned when creating a location for an already
	// registered city.
	ErrCityExists = errors.New("city already registered")

	// ErrValidation marks records that fail range validation before persistence.
	ErrValidation = errors.New("validation failed")
)

var validate = validator.New()

// DedupWindow is the interval during which a repeat current-weather fetch for
// the same location is not re-persisted.
const DedupWindow = time.Minute

// Store is the persistence contract the service depends on.
type Store interface {
	CreateLocation(loc *Location) error
	LocationByCity(city, country string) (Location, error)
	Locations(skip, limit int) ([]Location, error)
	DeleteLocation(id uint) error

	CreateWeatherRecord(rec *WeatherRecord) error
	WeatherRecords(city string, start, end *time.Time, skip, limit int) ([]WeatherRecord, error)
	WeatherRecordSince(locationID uint, since time.Time) (WeatherRecord, error)
	UpdateWeatherRecord(id uint, temperature float64, description string) (WeatherRecord, error)
	DeleteWeatherRecord(id uint) error
	ExportWeatherRecords(city string) ([]ExportedRecord, error)
	PruneWeatherRecords(olderThan time.Time) (int64, error)

	CreateHistoricalRecord(rec *HistoricalWeatherRecord) error
	HistoricalRecordByQueryTime(locationID uint, queryTimestamp time.Time) (HistoricalWeatherRecord, error)
	HistoricalRecords(city string, start, end *time.Time, skip, limit int) ([]HistoricalWeatherRecord, error)
	UpdateHistoricalRecord(id uint, temperature float64, description string) (HistoricalWeatherRecord, error)
}

// Upstream abstracts the third-party weather provider.
type Upstream interface {
	FetchCurrent(ctx context.Context, city string, lat, lon *float64) (CurrentConditions, error)
	FetchForecast(ctx context.Context, city string, lat, lon *float64, days int) ([]ForecastEntry, error)
	FetchHistorical(ctx context.Context, city string, timestamp int64, lat, lon *float64) (HistoricalConditions, error)
}

// Service orchestrates the fetch -> resolve-location -> deduplicate -> persist
// ingestion workflows and the plain CRUD operations around them.
type Service struct {
	store    Store
	upstream Upstream
}

// NewService creates a new Service.
func NewService(store Store, upstream Upstream) *Service {
	return &Service{
		store:    store,
		upstream: upstream,
	}
}

// CurrentWeather fetches current weather from the upstream provider, persists
// a record unless one already exists inside the dedup window, and returns the
// raw upstream payload. Persistence is a side effect and is not reflected in
// the returned value.
func (s *Service) CurrentWeather(ctx context.Context, city string, lat, lon *float64) (CurrentConditions, error) {
	conditions, err := s.upstream.FetchCurrent(ctx, city, lat, lon)
	if err != nil {
		return CurrentConditions{}, err
	}

	loc, err := s.resolveLocation(city, conditions.Country, conditions.Latitude, conditions.Longitude)
	if err != nil {
		return CurrentConditions{}, err
	}

	// Read-then-write: two concurrent requests inside the window can both
	// pass this check and both insert. Nothing at the schema level backs
	// the window.
	_, err = s.store.WeatherRecordSince(loc.ID, time.Now().UTC().Add(-DedupWindow))
	switch {
	case errors.Is(err, ErrNotFound):
		rec := WeatherRecord{
			LocationID:  loc.ID,
			Temperature: conditions.Temperature,
			Humidity:    conditions.Humidity,
			Pressure:    conditions.Pressure,
			Description: conditions.Description,
			Icon:        conditions.Icon,
			Timestamp:   time.Now().UTC(),
		}
		if err := validate.Struct(rec); err != nil {
			return CurrentConditions{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := s.store.CreateWeatherRecord(&rec); err != nil {
			return CurrentConditions{}, err
		}
	case err != nil:
		return CurrentConditions{}, err
	}

	return conditions, nil
}

// Forecast fetches the forecast series from the upstream provider. Nothing is
// persisted.
func (s *Service) Forecast(ctx context.Context, city string, lat, lon *float64, days int) ([]ForecastEntry, error) {
	return s.upstream.FetchForecast(ctx, city, lat, lon, days)
}

// HistoricalWeather fetches weather for a past instant and persists it once
// per (location, query timestamp) pair. A repeat request for the same pair
// returns the stored record unchanged.
func (s *Service) HistoricalWeather(ctx context.Context, city string, timestamp int64, lat, lon *float64) (HistoricalWeatherRecord, error) {
	// The current-weather call is the authority on the country name, so it
	// runs first even when coordinates were supplied.
	current, err := s.upstream.FetchCurrent(ctx, city, lat, lon)
	if err != nil {
		return HistoricalWeatherRecord{}, err
	}

	conditions, err := s.upstream.FetchHistorical(ctx, city, timestamp, &current.Latitude, &current.Longitude)
	if err != nil {
		return HistoricalWeatherRecord{}, err
	}

	loc, err := s.resolveLocation(city, current.Country, current.Latitude, current.Longitude)
	if err != nil {
		return HistoricalWeatherRecord{}, err
	}

	queryTimestamp := time.Unix(timestamp, 0).UTC()
	existing, err := s.store.HistoricalRecordByQueryTime(loc.ID, queryTimestamp)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return HistoricalWeatherRecord{}, err
	}

	rec := HistoricalWeatherRecord{
		LocationID:     loc.ID,
		Temperature:    conditions.Temperature,
		Humidity:       conditions.Humidity,
		Pressure:       conditions.Pressure,
		Description:    conditions.Description,
		Icon:           "01d",
		Timestamp:      time.Now().UTC(),
		QueryTimestamp: queryTimestamp,
	}
	if err := validate.Struct(rec); err != nil {
		return HistoricalWeatherRecord{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.store.CreateHistoricalRecord(&rec); err != nil {
		return HistoricalWeatherRecord{}, err
	}
	return rec, nil
}

// resolveLocation finds a location by (city, country) with a case-insensitive
// city match, creating it from the upstream-reported data when absent. The
// location may outlive a failed later step; that ordering is deliberate.
func (s *Service) resolveLocation(city, country string, lat, lon float64) (Location, error) {
	loc, err := s.store.LocationByCity(city, country)
	if err == nil {
		return loc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Location{}, err
	}

	loc = Location{City: city, Country: country, Latitude: lat, Longitude: lon}
	if err := validate.Struct(loc); err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.store.CreateLocation(&loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// CreateLocation registers a location explicitly. The city must not already
// be registered, regardless of country.
func (s *Service) CreateLocation(loc Location) (Location, error) {
	if _, err := s.store.LocationByCity(loc.City, ""); err == nil {
		return Location{}, ErrCityExists
	} else if !errors.Is(err, ErrNotFound) {
		return Location{}, err
	}

	if err := s.store.CreateLocation(&loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Locations lists registered locations with pagination.
func (s *Service) Locations(skip, limit int) ([]Location, error) {
	return s.store.Locations(skip, limit)
}

// DeleteLocation deletes a location and all of its weather and historical
// records.
func (s *Service) DeleteLocation(id uint) error {
	return s.store.DeleteLocation(id)
}

// WeatherRecords lists stored weather records, optionally filtered by city
// and date range.
func (s *Service) WeatherRecords(city string, start, end *time.Time, skip, limit int) ([]WeatherRecord, error) {
	return s.store.WeatherRecords(city, start, end, skip, limit)
}

// UpdateWeatherRecord updates temperature and description of a record. Other
// fields are left untouched.
func (s *Service) UpdateWeatherRecord(id uint, temperature float64, description string) (WeatherRecord, error) {
	return s.store.UpdateWeatherRecord(id, temperature, description)
}

// DeleteWeatherRecord deletes a weather record by id.
func (s *Service) DeleteWeatherRecord(id uint) error {
	return s.store.DeleteWeatherRecord(id)
}

// Export returns the flattened join of weather records and locations for a
// city.
func (s *Service) Export(city string) ([]ExportedRecord, error) {
	return s.store.ExportWeatherRecords(city)
}

// PruneWeatherRecords removes weather records older than the given instant
// and reports how many were removed.
func (s *Service) PruneWeatherRecords(olderThan time.Time) (int64, error) {
	return s.store.PruneWeatherRecords(olderThan)
}

// HistoricalRecords lists stored historical records, optionally filtered by
// city and query-timestamp range.
func (s *Service) HistoricalRecords(city string, start, end *time.Time, skip, limit int) ([]HistoricalWeatherRecord, error) {
	return s.store.HistoricalRecords(city, start, end, skip, limit)
}

// UpdateHistoricalRecord updates temperature and description of a historical
// record.
func (s *Service) UpdateHistoricalRecord(id uint, temperature float64, description string) (HistoricalWeatherRecord, error) {
	return s.store.UpdateHistoricalRecord(id, temperature, description)
}
