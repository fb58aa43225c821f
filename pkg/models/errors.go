package models

import "errors"

// Domain errors. These terminate the calling flow and indicate a genuine
// setup or scenario failure rather than a timing issue.
var (
	ErrUnknownMicroservice   = errors.New("unknown microservice")
	ErrAmbiguousMicroservice = errors.New("microservice belongs to more than one group")
	ErrChoiceNotFound        = errors.New("no option matches the requested choice")
	ErrDecisionPointNotFound = errors.New("decision point not found")
	ErrJobNotFound           = errors.New("job not found")
	ErrUnitNotFound          = errors.New("unit not found")
	ErrNoMatchingLocation    = errors.New("no matching storage location")
	ErrNotUnique             = errors.New("more than one match where one was required")
	ErrNavigationFailed      = errors.New("navigation failed")
	ErrDownloadFailed        = errors.New("download failed")
	ErrInvalidPID            = errors.New("invalid persistent identifier")
)
