package harness

import "github.com/ternarybob/amsc/internal/common"

// Dashboard pages.

func (h *Harness) amURL(segments ...string) string {
	return common.JoinURL(h.config.Dashboard.URL, segments...)
}

func (h *Harness) ssURL(segments ...string) string {
	return common.JoinURL(h.config.StorageService.URL, segments...)
}

func (h *Harness) LoginURL() string { return h.amURL("administration", "accounts", "login") }
func (h *Harness) InstallerWelcomeURL() string { return h.amURL("installer", "welcome") }
func (h *Harness) TransferURL() string { return h.amURL("transfer") }
func (h *Harness) IngestURL() string { return h.amURL("ingest") }
func (h *Harness) BacklogURL() string { return h.amURL("backlog") }

func (h *Harness) TasksURL(jobUUID string) string {
	return h.amURL("tasks", jobUUID)
}

func (h *Harness) NormalizationReportURL(sipUUID string) string {
	return h.amURL("ingest", "normalization-report", sipUUID)
}

func (h *Harness) MetadataAddURL(sipUUID string) string {
	return h.amURL("ingest", sipUUID, "metadata", "add")
}

// PreviewAIPURL is the review-AIP file browser of a SIP awaiting storage.
func (h *Harness) PreviewAIPURL(sipUUID string) string {
	return h.amURL("ingest", "preview", "aip", sipUUID)
}

// ArchivalStorageURL is the archival storage tab, or one AIP's page when
// aipUUID is set.
func (h *Harness) ArchivalStorageURL(aipUUID string) string {
	return h.amURL("archival-storage", aipUUID)
}

func (h *Harness) ProcessingConfigURL() string {
	return h.amURL("administration", "processing", "edit", "default")
}

// Storage Service pages.

func (h *Harness) SSLoginURL() string { return h.ssURL("login") }
func (h *Harness) SSSpacesURL() string { return h.ssURL("spaces") }
func (h *Harness) SSPackagesURL() string { return h.ssURL("packages") }

func (h *Harness) SSSpaceURL(spaceUUID string) string {
	return h.ssURL("spaces", spaceUUID)
}

func (h *Harness) SSLocationURL(locationUUID string) string {
	return h.ssURL("locations", locationUUID)
}

// SSUserEditURL is the edit page of the first Storage Service user, which
// shows its API key.
func (h *Harness) SSUserEditURL() string {
	return h.ssURL("administration", "users", "1", "edit")
}
