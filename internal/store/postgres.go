package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"weather-backend/internal/weather"
)

// Store persists locations and weather records behind gorm. Every method runs
// in its own scoped session; gorm releases the connection back to the pool on
// every exit path.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres with the given parameters and migrates the schema.
func Open(user, password, host, port, dbname string) (*Store, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm connection and migrates the schema. Tests use
// this with an in-memory sqlite database.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&weather.Location{}, &weather.WeatherRecord{}, &weather.HistoricalWeatherRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateLocation inserts a new location.
func (s *Store) CreateLocation(loc *weather.Location) error {
	return s.db.Create(loc).Error
}

// LocationByCity finds a location by city name, case-insensitively. A
// non-empty country narrows the match.
func (s *Store) LocationByCity(city, country string) (weather.Location, error) {
	q := s.db.Where("LOWER(city) = LOWER(?)", city)
	if country != "" {
		q = q.Where("country = ?", country)
	}

	var loc weather.Location
	if err := q.First(&loc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return weather.Location{}, weather.ErrNotFound
		}
		return weather.Location{}, err
	}
	return loc, nil
}

// Locations lists locations with pagination.
func (s *Store) Locations(skip, limit int) ([]weather.Location, error) {
	var locs []weather.Location
	if err := s.db.Offset(skip).Limit(limit).Find(&locs).Error; err != nil {
		return nil, err
	}
	return locs, nil
}

// DeleteLocation deletes a location and cascades to its weather and
// historical records. The children are removed explicitly inside one
// transaction so the cascade does not depend on driver-level foreign key
// enforcement.
func (s *Store) DeleteLocation(id uint) error {
	var loc weather.Location
	if err := s.db.First(&loc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return weather.ErrNotFound
		}
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("location_id = ?", id).Delete(&weather.WeatherRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("location_id = ?", id).Delete(&weather.HistoricalWeatherRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&loc).Error
	})
}

// CreateWeatherRecord inserts a new weather record.
func (s *Store) CreateWeatherRecord(rec *weather.WeatherRecord) error {
	return s.db.Create(rec).Error
}

// WeatherRecordSince returns a weather record for the location with a
// timestamp at or after the given instant, if any.
func (s *Store) WeatherRecordSince(locationID uint, since time.Time) (weather.WeatherRecord, error) {
	var rec weather.WeatherRecord
	err := s.db.Where("location_id = ? AND timestamp >= ?", locationID, since).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return weather.WeatherRecord{}, weather.ErrNotFound
		}
		return weather.WeatherRecord{}, err
	}
	return rec, nil
}

// WeatherRecords lists weather records, optionally filtered by city and
// timestamp range, with pagination.
func (s *Store) WeatherRecords(city string, start, end *time.Time, skip, limit int) ([]weather.WeatherRecord, error) {
	q := s.db.Model(&weather.WeatherRecord{})
	if city != "" {
		q = q.Joins("JOIN locations ON locations.id = weather_records.location_id").
			Where("locations.city = ?", city)
	}
	if start != nil {
		q = q.Where("weather_records.timestamp >= ?", *start)
	}
	if end != nil {
		q = q.Where("weather_records.timestamp <= ?", *end)
	}

	var recs []weather.WeatherRecord
	if err := q.Offset(skip).Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// UpdateWeatherRecord updates temperature and description only.
func (s *Store) UpdateWeatherRecord(id uint, temperature float64, description string) (weather.WeatherRecord, error) {
	var rec weather.WeatherRecord
	if err := s.db.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return weather.WeatherRecord{}, weather.ErrNotFound
		}
		return weather.WeatherRecord{}, err
	}

	updates := map[string]interface{}{
		"temperature": temperature,
		"description": description,
	}
	if err := s.db.Model(&rec).Updates(updates).Error; err != nil {
		return weather.WeatherRecord{}, err
	}
	rec.Temperature = temperature
	rec.Description = description
	return rec, nil
}

// DeleteWeatherRecord deletes a weather record by id.
func (s *Store) DeleteWeatherRecord(id uint) error {
	var rec weather.WeatherRecord
	if err := s.db.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return weather.ErrNotFound
		}
		return err
	}
	return s.db.Delete(&rec).Error
}

type exportRow struct {
	ID          uint
	City        string
	Country     string
	Temperature float64
	Humidity    float64
	Pressure    float64
	Description string
	Timestamp   time.Time
}

// ExportWeatherRecords returns weather records joined with their location as
// flat rows. An empty city exports everything.
func (s *Store) ExportWeatherRecords(city string) ([]weather.ExportedRecord, error) {
	q := s.db.Model(&weather.WeatherRecord{}).
		Select("weather_records.id, locations.city, locations.country, weather_records.temperature, weather_records.humidity, weather_records.pressure, weather_records.description, weather_records.timestamp").
		Joins("JOIN locations ON locations.id = weather_records.location_id")
	if city != "" {
		q = q.Where("locations.city = ?", city)
	}

	var rows []exportRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]weather.ExportedRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, weather.ExportedRecord{
			ID:          r.ID,
			City:        r.City,
			Country:     r.Country,
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			Pressure:    r.Pressure,
			Description: r.Description,
			Timestamp:   r.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

// PruneWeatherRecords deletes weather records older than the given instant.
func (s *Store) PruneWeatherRecords(olderThan time.Time) (int64, error) {
	res := s.db.Where("timestamp < ?", olderThan).Delete(&weather.WeatherRecord{})
	return res.RowsAffected, res.Error
}

// CreateHistoricalRecord inserts a new historical weather record.
func (s *Store) CreateHistoricalRecord(rec *weather.HistoricalWeatherRecord) error {
	return s.db.Create(rec).Error
}

// HistoricalRecordByQueryTime finds the historical record for an exact
// (location, query timestamp) pair.
func (s *Store) HistoricalRecordByQueryTime(locationID uint, queryTimestamp time.Time) (weather.HistoricalWeatherRecord, error) {
	var rec weather.HistoricalWeatherRecord
	err := s.db.Where("location_id = ? AND query_timestamp = ?", locationID, queryTimestamp).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return weather.HistoricalWeatherRecord{}, weather.ErrNotFound
		}
		return weather.HistoricalWeatherRecord{}, err
	}
	return rec, nil
}

// HistoricalRecords lists historical records, optionally filtered by city and
// query-timestamp range, with pagination.
func (s *Store) HistoricalRecords(city string, start, end *time.Time, skip, limit int) ([]weather.HistoricalWeatherRecord, error) {
	q := s.db.Model(&weather.HistoricalWeatherRecord{})
	if city != "" {
		q = q.Joins("JOIN locations ON locations.id = historical_weather_records.location_id").
			Where("locations.city = ?", city)
	}
	if start != nil {
		q = q.Where("historical_weather_records.query_timestamp >= ?", *start)
	}
	if end != nil {
		q = q.Where("historical_weather_records.query_timestamp <= ?", *end)
	}

	var recs []weather.HistoricalWeatherRecord
	if err := q.Offset(skip).Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// UpdateHistoricalRecord updates temperature and description only.
func (s *Store) UpdateHistoricalRecord(id uint, temperature float64, description string) (weather.HistoricalWeatherRecord, error) {
	var rec weather.HistoricalWeatherRecord
	if err := s.db.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return weather.HistoricalWeatherRecord{}, weather.ErrNotFound
		}
		return weather.HistoricalWeatherRecord{}, err
	}

	updates := map[string]interface{}{
		"temperature": temperature,
		"description": description,
	}
	if err := s.db.Model(&rec).Updates(updates).Error; err != nil {
		return weather.HistoricalWeatherRecord{}, err
	}
	rec.Temperature = temperature
	rec.Description = description
	return rec, nil
}
