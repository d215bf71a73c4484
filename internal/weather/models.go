package weather

import (
	"time"
)

// Location is a uniquely identified city/country point with coordinates.
// City is matched case-insensitively; the (city, country) pair acts as the
// natural key.
type Location struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	City      string  `gorm:"index" json:"city" validate:"required"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`

	WeatherRecords    []WeatherRecord           `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	HistoricalRecords []HistoricalWeatherRecord `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// WeatherRecord is one observed-now weather snapshot tied to a location.
// Timestamp is the ingestion instant.
type WeatherRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	LocationID  uint      `gorm:"index" json:"location_id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity" validate:"gte=0,lte=100"`
	Pressure    float64   `json:"pressure"`
	Description string    `json:"description"`
	Icon        string    `gorm:"default:01d" json:"icon"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
}

// HistoricalWeatherRecord is a weather observation for a specific past
// instant. QueryTimestamp is the historical instant that was asked for;
// Timestamp is when the query was made. At most one record exists per
// (location, query timestamp) pair.
type HistoricalWeatherRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	LocationID     uint      `gorm:"index" json:"location_id"`
	Temperature    float64   `json:"temperature"`
	Humidity       float64   `json:"humidity" validate:"gte=0,lte=100"`
	Pressure       float64   `json:"pressure"`
	Description    string    `json:"description"`
	Icon           string    `gorm:"default:01d" json:"icon"`
	Timestamp      time.Time `json:"timestamp"`
	QueryTimestamp time.Time `gorm:"index" json:"query_timestamp"`
}

// CurrentConditions is the normalized payload of an upstream current-weather
// call. It is returned to the caller as-is; persistence is a side effect.
type CurrentConditions struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Country     string  `json:"country"`
}

// ForecastEntry is one 3-hour step of the upstream forecast series.
type ForecastEntry struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Timestamp   time.Time `json:"timestamp"`
}

// HistoricalConditions is the normalized payload of an upstream timemachine
// call. Temperature arrives in Celsius already; see FetchHistorical.
type HistoricalConditions struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
}

// ExportedRecord is a flattened weather record joined with its location,
// suitable for export. Timestamp is an ISO-8601 string.
type ExportedRecord struct {
	ID          uint    `json:"id"`
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Description string  `json:"description"`
	Timestamp   string  `json:"timestamp"`
}
