package domain

import "time"

// Scenario status values.
const (
	ScenarioActive   = 0
	ScenarioDisabled = 1
)

// Step post types.
const (
	PostTypeRaw  = 0
	PostTypeForm = 1
)

// FieldType identifies the bucket a key/value field belongs to.
type FieldType int

const (
	FieldHeader   FieldType = 0
	FieldVariable FieldType = 1
	FieldPost     FieldType = 2
	FieldQuery    FieldType = 3
)

// Defaults applied to scenarios and steps that leave these fields empty.
const (
	DefaultDelay   = "1m"
	DefaultTimeout = "15s"
	DefaultAgent   = "Zabbix"
)

// Field is a single name/value pair of a field bucket.
type Field struct {
	Name  string `json:"name" db:"name"`
	Value string `json:"value" db:"value"`
}

// Scenario is a web scenario owned by a host or template. OriginID points at
// the template scenario it was inherited from; nil means locally owned.
type Scenario struct {
	ID        string    `json:"id" db:"id"`
	HostID    string    `json:"host_id" db:"host_id"`
	Name      string    `json:"name" db:"name"`
	OriginID  *string   `json:"origin_id,omitempty" db:"origin_id"`
	Delay     string    `json:"delay" db:"delay"`
	Status    int       `json:"status" db:"status"`
	Agent     string    `json:"agent" db:"agent"`
	Retries   int       `json:"retries" db:"retries"`
	Headers   []Field   `json:"headers" db:"-"`
	Variables []Field   `json:"variables" db:"-"`
	Steps     []Step    `json:"steps" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Step is one ordered request of a scenario. Name is unique within the
// scenario and is what matches steps across inheritance boundaries.
type Step struct {
	ID              string  `json:"id,omitempty" db:"id"`
	ScenarioID      string  `json:"scenario_id,omitempty" db:"scenario_id"`
	No              int     `json:"no" db:"step_no"`
	Name            string  `json:"name" db:"name"`
	URL             string  `json:"url" db:"url"`
	Timeout         string  `json:"timeout" db:"timeout"`
	Posts           string  `json:"posts,omitempty" db:"posts"`
	PostType        int     `json:"post_type" db:"post_type"`
	Required        string  `json:"required,omitempty" db:"required"`
	StatusCodes     string  `json:"status_codes,omitempty" db:"status_codes"`
	FollowRedirects bool    `json:"follow_redirects" db:"follow_redirects"`
	Headers         []Field `json:"headers" db:"-"`
	Variables       []Field `json:"variables" db:"-"`
	QueryFields     []Field `json:"query_fields" db:"-"`
	PostFields      []Field `json:"post_fields" db:"-"`
}

// ScenarioSummary is the slim view of a scenario used to index a host's
// existing scenarios during inheritance.
type ScenarioSummary struct {
	ID       string  `db:"id"`
	HostID   string  `db:"host_id"`
	Name     string  `db:"name"`
	OriginID *string `db:"origin_id"`
}

// IsInherited reports whether the scenario was derived from a template.
func (s *Scenario) IsInherited() bool {
	return s.OriginID != nil && *s.OriginID != ""
}

// Buckets returns the scenario-level field buckets keyed by type.
func (s *Scenario) Buckets() map[FieldType][]Field {
	return map[FieldType][]Field{
		FieldHeader:   s.Headers,
		FieldVariable: s.Variables,
	}
}

// Buckets returns the step-level field buckets keyed by type.
func (s *Step) Buckets() map[FieldType][]Field {
	return map[FieldType][]Field{
		FieldHeader:   s.Headers,
		FieldVariable: s.Variables,
		FieldQuery:    s.QueryFields,
		FieldPost:     s.PostFields,
	}
}

// SetBucket assigns fields to the scenario bucket of the given type.
func (s *Scenario) SetBucket(t FieldType, fields []Field) {
	switch t {
	case FieldHeader:
		s.Headers = fields
	case FieldVariable:
		s.Variables = fields
	}
}

// SetBucket assigns fields to the step bucket of the given type.
func (s *Step) SetBucket(t FieldType, fields []Field) {
	switch t {
	case FieldHeader:
		s.Headers = fields
	case FieldVariable:
		s.Variables = fields
	case FieldQuery:
		s.QueryFields = fields
	case FieldPost:
		s.PostFields = fields
	}
}

// Clone returns a deep copy of the scenario.
func (s *Scenario) Clone() *Scenario {
	c := *s
	if s.OriginID != nil {
		origin := *s.OriginID
		c.OriginID = &origin
	}
	c.Headers = cloneFields(s.Headers)
	c.Variables = cloneFields(s.Variables)
	if s.Steps != nil {
		c.Steps = make([]Step, len(s.Steps))
		for i := range s.Steps {
			c.Steps[i] = s.Steps[i].Clone()
		}
	}
	return &c
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	s.Headers = cloneFields(s.Headers)
	s.Variables = cloneFields(s.Variables)
	s.QueryFields = cloneFields(s.QueryFields)
	s.PostFields = cloneFields(s.PostFields)
	return s
}

func cloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// FieldsEqual reports whether two buckets hold the same values in the same order.
func FieldsEqual(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// CreateScenarioRequest is the request body for creating a scenario.
type CreateScenarioRequest struct {
	Name      string  `json:"name"`
	Delay     string  `json:"delay,omitempty"`
	Status    int     `json:"status,omitempty"`
	Agent     string  `json:"agent,omitempty"`
	Retries   int     `json:"retries,omitempty"`
	Headers   []Field `json:"headers,omitempty"`
	Variables []Field `json:"variables,omitempty"`
	Steps     []Step  `json:"steps"`
}

// UpdateScenarioRequest is the request body for updating a scenario.
// Nil fields are left unchanged. Steps that carry an id update the stored
// step with that id; steps without one are created; stored steps missing
// from the list are deleted.
type UpdateScenarioRequest struct {
	Name      *string  `json:"name,omitempty"`
	Delay     *string  `json:"delay,omitempty"`
	Status    *int     `json:"status,omitempty"`
	Agent     *string  `json:"agent,omitempty"`
	Retries   *int     `json:"retries,omitempty"`
	Headers   *[]Field `json:"headers,omitempty"`
	Variables *[]Field `json:"variables,omitempty"`
	Steps     *[]Step  `json:"steps,omitempty"`
}
