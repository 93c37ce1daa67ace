package properties

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"propchat-backend/internal/database"
)

// maxResults bounds how many listings a single tool call can feed back into
// the model's context window.
const maxResults = 10

type SearchFilters struct {
	Type     string
	City     string
	MaxPrice float64
	Bedrooms int
}

// Store reads listing data on behalf of the chat tools. Listings are owned
// and written by the rest of the platform.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Search returns available listings matching the filters, cheapest first.
// Zero-valued filters are not applied.
func (s *Store) Search(ctx context.Context, filters SearchFilters) ([]database.Property, error) {
	query := s.db.WithContext(ctx).Where("available = ?", true)

	if filters.Type != "" {
		query = query.Where("type = ?", filters.Type)
	}
	if filters.City != "" {
		query = query.Where("city = ?", filters.City)
	}
	if filters.MaxPrice > 0 {
		query = query.Where("price <= ?", filters.MaxPrice)
	}
	if filters.Bedrooms > 0 {
		query = query.Where("bedrooms >= ?", filters.Bedrooms)
	}

	var results []database.Property
	if err := query.Order("price ASC").Limit(maxResults).Find(&results).Error; err != nil {
		return nil, fmt.Errorf("unable to search properties: %w", err)
	}
	return results, nil
}

// Locations returns the distinct cities that currently have available
// listings.
func (s *Store) Locations(ctx context.Context) ([]string, error) {
	var cities []string
	err := s.db.WithContext(ctx).
		Model(&database.Property{}).
		Where("available = ?", true).
		Distinct().
		Order("city ASC").
		Pluck("city", &cities).Error
	if err != nil {
		return nil, fmt.Errorf("unable to list property locations: %w", err)
	}
	return cities, nil
}
