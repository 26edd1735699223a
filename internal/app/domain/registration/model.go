// Package registration defines the business-registration request entity and
// its status lifecycle.
package registration

import "time"

// Status of a registration request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Request is a business-registration case. It belongs to one user and one
// package and may reference any number of add-ons.
type Request struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	CompanyName string    `json:"company_name"`
	Status      Status    `json:"status"`
	UserID      int64     `json:"user_id"`
	PackageID   int64     `json:"package_id"`
	AddOnIDs    []int64   `json:"ad_ids"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summary is the trimmed view embedded in catalog detail responses.
type Summary struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	CompanyName string    `json:"company_name"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StatusCounts buckets requests referencing an item by status.
type StatusCounts struct {
	Total     int `json:"total_requests"`
	Pending   int `json:"pending_requests"`
	Completed int `json:"completed_requests"`
	Rejected  int `json:"rejected_requests"`
}
