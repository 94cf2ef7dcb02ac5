package domain

import "time"

// Host is an entity that owns web scenarios. Templates are hosts with
// IsTemplate set; their scenarios are inherited by every linked host.
type Host struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	IsTemplate bool      `json:"is_template" db:"is_template"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// TemplateLink records that HostID consumes the scenarios of TemplateID.
type TemplateLink struct {
	HostID     string `json:"host_id" db:"host_id"`
	TemplateID string `json:"template_id" db:"template_id"`
}

// CreateHostRequest is the request body for creating a host or template.
type CreateHostRequest struct {
	Name       string `json:"name"`
	IsTemplate bool   `json:"is_template,omitempty"`
}

// UpdateHostRequest is the request body for renaming a host.
type UpdateHostRequest struct {
	Name string `json:"name"`
}

// LinkTemplateRequest is the request body for linking a template to a host.
type LinkTemplateRequest struct {
	TemplateID string `json:"template_id"`
}
