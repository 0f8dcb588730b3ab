package models

import (
	"time"
)

// Company is a company record. A company with MergedInto set is a tombstone:
// it was absorbed into another company and is excluded from matching.
type Company struct {
	ID             string      `json:"id" db:"id"`
	TenantID       string      `json:"tenant_id" db:"tenant_id"`
	Name           string      `json:"name" db:"name"`
	NormalizedName string      `json:"normalized_name" db:"normalized_name"`
	Website        *string     `json:"website,omitempty" db:"website"`
	LinkedInURL    *string     `json:"linkedin_url,omitempty" db:"linkedin_url"`
	DataQuality    DataQuality `json:"data_quality" db:"data_quality"`
	MergedInto     *string     `json:"merged_into,omitempty" db:"merged_into"`
	MergedAt       *time.Time  `json:"merged_at,omitempty" db:"merged_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

func (c *Company) IsMerged() bool {
	return c.MergedInto != nil
}

// CompanyDomain is a web domain a company is known to own. Domains are the
// strongest company identity signal.
type CompanyDomain struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	CompanyID string    `json:"company_id" db:"company_id"`
	Domain    string    `json:"domain" db:"domain"`
	Verified  bool      `json:"verified" db:"verified"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CompanyRecord is an inbound company to resolve against existing records.
type CompanyRecord struct {
	Name        string `json:"name" validate:"required"`
	Website     string `json:"website,omitempty"`
	Domain      string `json:"domain,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}
