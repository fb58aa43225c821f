package models

// ReportRow is a record extracted from a tabular view. Keys come from the
// view's column headers or definition-list labels at parse time.
type ReportRow map[string]string

// Package is a Storage Service package as returned by its REST API.
type Package struct {
	UUID        string `json:"uuid"`
	CurrentPath string `json:"current_path"`
	PackageType string `json:"package_type"`
	Status      string `json:"status"`
	Size        int64  `json:"size"`
	ResourceURI string `json:"resource_uri"`
}
