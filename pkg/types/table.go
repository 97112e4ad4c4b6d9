package types

// Auto-field column names.
const (
	ColID             = "id"
	ColCreatedAt      = "created_at"
	ColUpdatedAt      = "updated_at"
	ColUserID         = "user_id"
	ColOrganizationID = "organization_id"
	ColQueueID        = "queueId"
	ColQueueStatus    = "queueStatus"
)

// QueueStatusPending is the queueStatus given to new queue-linked rows.
const QueueStatusPending = "pending"

// AutoFields selects the columns the engine injects on write.
type AutoFields struct {
	ID           bool `json:"id,omitempty" yaml:"id,omitempty"`
	Timestamps   bool `json:"timestamps,omitempty" yaml:"timestamps,omitempty"`
	User         bool `json:"user,omitempty" yaml:"user,omitempty"`
	Organization bool `json:"organization,omitempty" yaml:"organization,omitempty"`
	Queue        bool `json:"queue,omitempty" yaml:"queue,omitempty"`
}

// TableOptions configures a table at first registration. Options are fixed
// for the lifetime of the partition.
type TableOptions struct {
	UserScoped         bool       `json:"userScoped,omitempty" yaml:"userScoped,omitempty"`
	OrganizationScoped bool       `json:"organizationScoped,omitempty" yaml:"organizationScoped,omitempty"`
	Indexes            []string   `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	UniqueIndexes      []string   `json:"uniqueIndexes,omitempty" yaml:"uniqueIndexes,omitempty"`
	AutoFields         AutoFields `json:"autoFields,omitempty" yaml:"autoFields,omitempty"`
	ConflictField      string     `json:"conflictField,omitempty" yaml:"conflictField,omitempty"`
}

// HasUserColumn reports whether rows carry a user_id column.
func (o TableOptions) HasUserColumn() bool {
	return o.UserScoped || o.AutoFields.User
}

// HasOrganizationColumn reports whether rows carry an organization_id column.
func (o TableOptions) HasOrganizationColumn() bool {
	return o.OrganizationScoped || o.AutoFields.Organization
}

// AutoColumns lists the auto-field columns in table order: id, timestamps,
// user scope, organization scope, queue linkage.
func (o TableOptions) AutoColumns() []string {
	var cols []string
	if o.AutoFields.ID {
		cols = append(cols, ColID)
	}
	if o.AutoFields.Timestamps {
		cols = append(cols, ColCreatedAt, ColUpdatedAt)
	}
	if o.HasUserColumn() {
		cols = append(cols, ColUserID)
	}
	if o.HasOrganizationColumn() {
		cols = append(cols, ColOrganizationID)
	}
	if o.AutoFields.Queue {
		cols = append(cols, ColQueueID, ColQueueStatus)
	}
	return cols
}
