// Package catalog holds the purchasable items a registration request selects
// from: service packages and optional add-ons.
package catalog

import "time"

// Package is a priced service tier.
type Package struct {
	ID          int64     `json:"package_id"`
	Title       string    `json:"package_title"`
	Description string    `json:"package_description"`
	Price       float64   `json:"package_price"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PackageUpdate carries the fields a partial package update may change.
type PackageUpdate struct {
	Title       *string  `json:"package_title,omitempty"`
	Description *string  `json:"package_description,omitempty"`
	Price       *float64 `json:"package_price,omitempty"`
}

// AddOn is an optional paid feature attachable to a request. The wire names
// keep the historical ad_* prefix of the public API.
type AddOn struct {
	ID          int64     `json:"ad_id"`
	Title       string    `json:"ad_title"`
	Price       float64   `json:"ad_price"`
	Description string    `json:"ad_description"`
	Information string    `json:"ad_information"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AddOnUpdate carries the fields a partial add-on update may change.
type AddOnUpdate struct {
	Title       *string  `json:"ad_title,omitempty"`
	Price       *float64 `json:"ad_price,omitempty"`
	Description *string  `json:"ad_description,omitempty"`
	Information *string  `json:"ad_information,omitempty"`
}

// AddOnUsage pairs an add-on with the number of requests referencing it.
type AddOnUsage struct {
	AddOn
	RequestCount int `json:"request_count"`
}

// PriceStats aggregates add-on prices across the catalog.
type PriceStats struct {
	Sum     float64 `json:"total"`
	Average float64 `json:"average"`
	Min     float64 `json:"minimum"`
	Max     float64 `json:"maximum"`
}
