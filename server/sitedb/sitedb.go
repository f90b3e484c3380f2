package sitedb

// sitedb holds the public-facing site content: the rental fleet and the site
// settings. Mutations go through the store's atomic update, so concurrent
// admin edits can't lose records.

import (
	"context"
	"time"

	"github.com/atlasvans/siteapi/pkg/kvstore"
	"github.com/cyclopcam/logs"
)

type Vehicle struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"` // eg campervan, 4x4, minibus
	Description string    `json:"description"`
	PricePerDay float64   `json:"price_per_day"`
	Seats       int       `json:"seats"`
	Sleeps      int       `json:"sleeps"`
	Images      []string  `json:"images"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SiteSettings struct {
	SiteName   string `json:"site_name"`
	Tagline    string `json:"tagline"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	LogoURL    string `json:"logo_url"`
	FaviconURL string `json:"favicon_url"`
	OGImageURL string `json:"og_image_url"`
	About      string `json:"about"`
}

var vehiclesCollection = kvstore.NewCollection("vehicles", func() []Vehicle { return []Vehicle{} })
var settingsCollection = kvstore.NewCollection("site-settings", func() SiteSettings { return SiteSettings{} })

type SiteDB struct {
	log   logs.Log
	store *kvstore.Store
}

func NewSiteDB(log logs.Log, store *kvstore.Store) *SiteDB {
	return &SiteDB{
		log:   log,
		store: store,
	}
}

func (d *SiteDB) Vehicles(ctx context.Context) []Vehicle {
	return kvstore.Read(ctx, d.store, vehiclesCollection)
}

func (d *SiteDB) VehicleByID(ctx context.Context, id int64) *Vehicle {
	vehicles := kvstore.Read(ctx, d.store, vehiclesCollection)
	for i := range vehicles {
		if vehicles[i].ID == id {
			return &vehicles[i]
		}
	}
	return nil
}

// AddVehicle assigns the next free id and timestamps, and appends the record
func (d *SiteDB) AddVehicle(ctx context.Context, v Vehicle) (*Vehicle, error) {
	return kvstore.Update(ctx, d.store, vehiclesCollection, func(vehicles *[]Vehicle) (*Vehicle, error) {
		maxID := int64(0)
		for _, existing := range *vehicles {
			if existing.ID > maxID {
				maxID = existing.ID
			}
		}
		now := time.Now().UTC()
		v.ID = maxID + 1
		v.CreatedAt = now
		v.UpdatedAt = now
		*vehicles = append(*vehicles, v)
		return &v, nil
	})
}

// UpdateVehicle replaces the record with the same id, preserving its creation
// time. Returns the stored record, or nil if no such vehicle exists.
func (d *SiteDB) UpdateVehicle(ctx context.Context, v Vehicle) (*Vehicle, error) {
	return kvstore.Update(ctx, d.store, vehiclesCollection, func(vehicles *[]Vehicle) (*Vehicle, error) {
		for i := range *vehicles {
			if (*vehicles)[i].ID == v.ID {
				v.CreatedAt = (*vehicles)[i].CreatedAt
				v.UpdatedAt = time.Now().UTC()
				(*vehicles)[i] = v
				return &v, nil
			}
		}
		return nil, nil
	})
}

// DeleteVehicle removes the record with the given id.
// Returns false if no such vehicle exists.
func (d *SiteDB) DeleteVehicle(ctx context.Context, id int64) (bool, error) {
	return kvstore.Update(ctx, d.store, vehiclesCollection, func(vehicles *[]Vehicle) (bool, error) {
		for i := range *vehicles {
			if (*vehicles)[i].ID == id {
				*vehicles = append((*vehicles)[:i], (*vehicles)[i+1:]...)
				return true, nil
			}
		}
		return false, nil
	})
}

func (d *SiteDB) Settings(ctx context.Context) SiteSettings {
	return kvstore.Read(ctx, d.store, settingsCollection)
}

func (d *SiteDB) SetSettings(ctx context.Context, s SiteSettings) error {
	return kvstore.Write(ctx, d.store, settingsCollection, s)
}
