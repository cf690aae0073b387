package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Preference holds the last known location of an owner. All location fields
// are written together; Extensions is an opaque blob reserved for later
// preferences and is never interpreted here.
type Preference[ID OwnerID] struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	OwnerID        ID         `gorm:"column:owner_id;size:64;not null;uniqueIndex:uk_owner" json:"-"`
	Latitude       *float64   `gorm:"type:double" json:"latitude,omitempty"`
	Longitude      *float64   `gorm:"type:double" json:"longitude,omitempty"`
	Accuracy       *float64   `gorm:"type:double" json:"accuracy,omitempty"`
	LocationSource *string    `gorm:"type:varchar(32)" json:"location_source,omitempty"`
	LocationSetAt  *time.Time `json:"location_set_at,omitempty"`
	Extensions     JSONObject `gorm:"type:json" json:"extensions,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

// AnonPreference preference owned by an anonymous visitor
type AnonPreference = Preference[string]

// UserPreference preference owned by an account
type UserPreference = Preference[uint64]

// Location is the unit written by a preference update
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Source    string
	SetAt     time.Time
}

// HasLocation reports whether a location has ever been recorded
func (p *Preference[ID]) HasLocation() bool {
	return p != nil && p.LocationSetAt != nil
}

// Location returns the stored location, or nil when none was recorded
func (p *Preference[ID]) Location() *Location {
	if !p.HasLocation() || p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	loc := &Location{
		Latitude:  *p.Latitude,
		Longitude: *p.Longitude,
		Accuracy:  p.Accuracy,
		SetAt:     *p.LocationSetAt,
	}
	if p.LocationSource != nil {
		loc.Source = *p.LocationSource
	}
	return loc
}

// ApplyLocation overwrites every location field at once
func (p *Preference[ID]) ApplyLocation(loc Location) {
	lat, lng := loc.Latitude, loc.Longitude
	source := loc.Source
	setAt := loc.SetAt
	p.Latitude = &lat
	p.Longitude = &lng
	p.Accuracy = nil
	if loc.Accuracy != nil {
		acc := *loc.Accuracy
		p.Accuracy = &acc
	}
	p.LocationSource = &source
	p.LocationSetAt = &setAt
}

// JSONObject opaque JSON object column
type JSONObject map[string]interface{}

// Value implement driver.Valuer interface
func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implement sql.Scanner interface
func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONObject", value)
	}

	return json.Unmarshal(bytes, j)
}
