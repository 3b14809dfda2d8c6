package model

// Dataset states.
const (
	DatasetStateActive   = "active"
	DatasetStateDeleted  = "deleted"
	DatasetStateToDelete = "to_delete"
)

// DatasetTypeDefault is the dataset type eligible for orphan removal.
const DatasetTypeDefault = "dataset"

// Dataset is a local dataset record (a package) produced by imports.
type Dataset struct {
	ID       string  `json:"id"                  db:"id"`
	Name     string  `json:"name"                db:"name"`
	Title    string  `json:"title"               db:"title"`
	Type     string  `json:"type"                db:"type"`
	State    string  `json:"state"               db:"state"`
	OwnerOrg *string `json:"owner_org,omitempty" db:"owner_org"`
}

// OrphanQuery selects datasets that no harvest object references.
type OrphanQuery struct {
	OwnerOrg string
	// MarkerKey and MarkerValue identify datasets managed outside of harvesting.
	MarkerKey   string
	MarkerValue string
}

// Organization owns sources and datasets.
type Organization struct {
	ID    string `json:"id"    db:"id"`
	Name  string `json:"name"  db:"name"`
	Title string `json:"title" db:"title"`
	// EmailList is the raw "email_list" extra.
	EmailList string `json:"email_list,omitempty" db:"email_list"`
}

// DisplayName returns the title, falling back to the name.
func (o Organization) DisplayName() string {
	if o.Title != "" {
		return o.Title
	}
	return o.Name
}
