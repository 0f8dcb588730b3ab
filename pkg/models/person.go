package models

import (
	"time"
)

// Person is a person record. CompanyID points at the current employer.
// A person with MergedInto set is a tombstone.
type Person struct {
	ID             string      `json:"id" db:"id"`
	TenantID       string      `json:"tenant_id" db:"tenant_id"`
	FirstName      string      `json:"first_name" db:"first_name"`
	LastName       string      `json:"last_name" db:"last_name"`
	NormalizedName string      `json:"normalized_name" db:"normalized_name"`
	Email          *string     `json:"email,omitempty" db:"email"`
	LinkedInURL    *string     `json:"linkedin_url,omitempty" db:"linkedin_url"`
	CompanyID      *string     `json:"company_id,omitempty" db:"company_id"`
	DataQuality    DataQuality `json:"data_quality" db:"data_quality"`
	MergedInto     *string     `json:"merged_into,omitempty" db:"merged_into"`
	MergedAt       *time.Time  `json:"merged_at,omitempty" db:"merged_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

func (p *Person) IsMerged() bool {
	return p.MergedInto != nil
}

// PersonRecord is an inbound person to resolve against existing records.
type PersonRecord struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Email       string `json:"email,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}
