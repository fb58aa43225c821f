package models

// UnitType distinguishes the two dashboard tabs a unit of work appears on.
type UnitType string

const (
	UnitTransfer UnitType = "transfer"
	UnitIngest   UnitType = "ingest"
)

// Unit is a transfer or SIP tracked by the dashboard. The UUID is discovered
// by scanning the UI after creation; Name may differ from the requested name
// when the dashboard renamed it to avoid a collision.
type Unit struct {
	UUID string   `json:"uuid"`
	Name string   `json:"name"`
	Type UnitType `json:"type"`
}

// TransferType is the dashboard's transfer type selector value.
type TransferType string

const (
	TransferStandard  TransferType = "standard"
	TransferZippedBag TransferType = "zipped bag"
	TransferUnzipped  TransferType = "unzipped bag"
	TransferDSpace    TransferType = "dspace"
	TransferMaildir   TransferType = "maildir"
	TransferTrim      TransferType = "TRIM"
)

// TransferRequest describes a transfer to start through the dashboard.
type TransferRequest struct {
	// Path is the transfer source directory relative to the transfer source
	// location, using "/" separators.
	Path      string       `json:"path" toml:"path" yaml:"path" validate:"required"`
	Name      string       `json:"name" toml:"name" yaml:"name"`
	Accession string       `json:"accession" toml:"accession" yaml:"accession"`
	Type      TransferType `json:"type" toml:"type" yaml:"type"`
}
