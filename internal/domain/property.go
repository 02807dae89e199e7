package domain

import (
	"strings"
	"time"
)

// PropertyStatus is the availability of a listing.
type PropertyStatus string

const (
	PropertyAvailable   PropertyStatus = "available"
	PropertyRented      PropertyStatus = "rented"
	PropertyUnavailable PropertyStatus = "unavailable"
)

// Valid reports whether s is a known property status.
func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyAvailable, PropertyRented, PropertyUnavailable:
		return true
	}
	return false
}

// Property is a rental listing.
type Property struct {
	ID            string         `json:"id"`
	LandlordID    string         `json:"landlord_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Address       string         `json:"address,omitempty"`
	City          string         `json:"city,omitempty"`
	District      string         `json:"district,omitempty"`
	PricePerMonth float64        `json:"price_per_month"`
	AreaSqm       *float64       `json:"area_sqm,omitempty"`
	Bedrooms      *int           `json:"bedrooms,omitempty"`
	Bathrooms     *int           `json:"bathrooms,omitempty"`
	PropertyType  string         `json:"property_type,omitempty"`
	Amenities     []string       `json:"amenities"`
	Images        []string       `json:"images"`
	Status        PropertyStatus `json:"status"`
	IsPublished   bool           `json:"is_published"`
	ViewCount     int            `json:"view_count"`
	Tag           string         `json:"tag,omitempty"`
	CreatedAt     *time.Time     `json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `json:"updated_at,omitempty"`
}

// PropertyFilter narrows GET /api/properties.
type PropertyFilter struct {
	Page         int
	Limit        int
	District     string
	MinPrice     *float64
	MaxPrice     *float64
	Bedrooms     *int
	PropertyType string
	LandlordID   string
}

// PropertyList is one page of properties plus the exact total.
type PropertyList struct {
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	Properties []Property `json:"properties"`
}

// PropertyInput is the body for POST /api/properties and PUT /api/properties/{id}.
// Nil fields are left untouched on update.
type PropertyInput struct {
	Title         *string         `json:"title"`
	Description   *string         `json:"description"`
	Address       *string         `json:"address"`
	City          *string         `json:"city"`
	District      *string         `json:"district"`
	PricePerMonth *float64        `json:"price_per_month"`
	AreaSqm       *float64        `json:"area_sqm"`
	Bedrooms      *int            `json:"bedrooms"`
	Bathrooms     *int            `json:"bathrooms"`
	PropertyType  *string         `json:"property_type"`
	Amenities     []string        `json:"amenities"`
	Images        []string        `json:"images"`
	Status        *PropertyStatus `json:"status"`
	IsPublished   *bool           `json:"is_published"`
}

// Fields returns the column/value pairs set in the input.
func (in *PropertyInput) Fields() map[string]any {
	f := map[string]any{}
	if in.Title != nil {
		f["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		f["description"] = *in.Description
	}
	if in.Address != nil {
		f["address"] = *in.Address
	}
	if in.City != nil {
		f["city"] = *in.City
	}
	if in.District != nil {
		f["district"] = *in.District
	}
	if in.PricePerMonth != nil {
		f["price_per_month"] = *in.PricePerMonth
	}
	if in.AreaSqm != nil {
		f["area_sqm"] = *in.AreaSqm
	}
	if in.Bedrooms != nil {
		f["bedrooms"] = *in.Bedrooms
	}
	if in.Bathrooms != nil {
		f["bathrooms"] = *in.Bathrooms
	}
	if in.PropertyType != nil {
		f["property_type"] = *in.PropertyType
	}
	if in.Amenities != nil {
		f["amenities"] = in.Amenities
	}
	if in.Images != nil {
		f["images"] = in.Images
	}
	if in.Status != nil {
		f["status"] = *in.Status
	}
	if in.IsPublished != nil {
		f["is_published"] = *in.IsPublished
	}
	return f
}

// PropertyStatusUpdate is the body for PUT /api/properties/{id}/status.
type PropertyStatusUpdate struct {
	IsPublished *bool           `json:"is_published"`
	Status      *PropertyStatus `json:"status"`
}

// PropertyStatusResult is the response payload of a status update.
type PropertyStatusResult struct {
	ID          string         `json:"id"`
	IsPublished bool           `json:"is_published"`
	Status      PropertyStatus `json:"status"`
}

// PropertyImagesResult is returned after uploading listing photos.
type PropertyImagesResult struct {
	ImageURLs []string  `json:"image_urls"`
	Property  *Property `json:"property"`
}
