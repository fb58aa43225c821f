package vocab

import (
	"fmt"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// Role names a UI element by what it does rather than how it is found.
type Role string

const (
	RoleLoginUsername         Role = "login_username"
	RoleLoginPassword         Role = "login_password"
	RoleLoginSubmit           Role = "login_submit"
	RoleSSLoginSubmit         Role = "ss_login_submit"
	RoleSSDefaultRegistration Role = "ss_default_registration"
	RoleTransferName          Role = "transfer_name"
	RoleTransferType          Role = "transfer_type"
	RoleTransferAccession     Role = "transfer_accession"
	RoleTransferSourceBrowser Role = "transfer_source_browser"
	RoleTransferBrowseButton  Role = "transfer_browse_button"
	RoleTransferAddDirectory  Role = "transfer_add_directory"
	RoleTransferStart         Role = "transfer_start"
	RoleTransferTreeContainer Role = "transfer_tree_container"
	RoleUnitContainer         Role = "unit_container"
	RoleUnitName              Role = "unit_name"
	RoleUnitUUID              Role = "unit_uuid"
	RoleUnitRemove            Role = "unit_remove"
	RoleDialog                Role = "dialog"
	RoleGroup                 Role = "group"
	RoleGroupName             Role = "group_name"
	RoleGroupJobList          Role = "group_job_list"
	RoleJob                   Role = "job"
	RoleJobMicroservice       Role = "job_microservice"
	RoleJobStatus             Role = "job_status"
	RoleJobActions            Role = "job_actions"
	RoleJobChoice             Role = "job_choice"
	RoleAIPExplorer           Role = "aip_explorer"
	RoleProcessingConfigSave  Role = "processing_config_save"
	RoleArchivalStorageSearch Role = "archival_storage_search"
	RoleSSPackagesRows        Role = "ss_packages_rows"
	RoleSSDetailLists         Role = "ss_detail_lists"
)

// selectorTable maps (role, version) to a locator. The Default column is
// consulted when a version has no override.
var selectorTable = map[Role]map[Version]interfaces.Locator{
	RoleLoginUsername: {Default: interfaces.ID("id_username")},
	RoleLoginPassword: {Default: interfaces.ID("id_password")},
	RoleLoginSubmit:   {Default: interfaces.CSS("button")},
	RoleSSLoginSubmit: {
		Default: interfaces.CSS(`input[value=login]`),
		V17:     interfaces.CSS(`input[value="Log in"]`),
	},
	RoleSSDefaultRegistration: {
		Default: interfaces.CSS(`input[name=use_default]`),
		V17:     interfaces.CSS(`input[type=submit]`),
	},
	RoleTransferName:          {Default: interfaces.CSS(`input[ng-model="vm.transfer.name"]`)},
	RoleTransferType:          {Default: interfaces.CSS(`select[ng-model="vm.transfer.type"]`)},
	RoleTransferAccession:     {Default: interfaces.CSS(`input[ng-model="vm.transfer.accession"]`)},
	RoleTransferSourceBrowser: {Default: interfaces.CSS(`div.transfer-tree-container`)},
	RoleTransferBrowseButton:  {Default: interfaces.CSS(`button[data-target="#transfer_browse_tree"]`)},
	RoleTransferAddDirectory:  {Default: interfaces.CSS(`button.pull-right[type=submit]`)},
	RoleTransferStart:         {Default: interfaces.CSS(`button[ng-click="vm.transfer.start()"]`)},
	RoleTransferTreeContainer: {Default: interfaces.CSS(`.transfer-tree-container`)},
	RoleUnitContainer:         {Default: interfaces.CSS("div.sip")},
	RoleUnitName:              {Default: interfaces.CSS("div.sip-detail-directory")},
	RoleUnitUUID:              {Default: interfaces.CSS("div.sip-detail-uuid")},
	RoleUnitRemove:            {Default: interfaces.CSS("a.btn_remove_sip")},
	RoleDialog:                {Default: interfaces.CSS("div.ui-dialog")},
	RoleGroup:                 {Default: interfaces.CSS("div.microservicegroup")},
	RoleGroupName:             {Default: interfaces.CSS("span.microservice-group-name")},
	RoleGroupJobList:          {Default: interfaces.CSS("div.microservice-group + div")},
	RoleJob:                   {Default: interfaces.CSS("div.job")},
	RoleJobMicroservice:       {Default: interfaces.CSS("div.job-detail-microservice span")},
	RoleJobStatus:             {Default: interfaces.CSS("div.job-detail-currentstep span")},
	RoleJobActions:            {Default: interfaces.CSS("div.job-detail-actions")},
	RoleJobChoice:             {Default: interfaces.CSS("select")},
	RoleAIPExplorer:           {Default: interfaces.ID("explorer")},
	RoleProcessingConfigSave:  {Default: interfaces.CSS("input[value=Save]")},
	RoleArchivalStorageSearch: {Default: interfaces.CSS("#archival-storage-entries")},
	RoleSSPackagesRows:        {Default: interfaces.CSS("#DataTables_Table_0 tr")},
	RoleSSDetailLists:         {Default: interfaces.CSS("dl")},
}

// LabelRole names a piece of version-dependent UI text.
type LabelRole string

const (
	LabelGroupPrefix LabelRole = "group_prefix"
	LabelNextPage    LabelRole = "next_page"
	LabelConfirm     LabelRole = "confirm"
)

var labelTable = map[LabelRole]map[Version]string{
	LabelGroupPrefix: {Default: "Microservice: ", V16: "Micro-service: "},
	LabelNextPage:    {Default: "Next page", V16: "Next Page"},
	LabelConfirm:     {Default: "Confirm"},
}

func lookup[T any](table map[Version]T, v Version) (T, bool) {
	if value, ok := table[v]; ok {
		return value, true
	}
	value, ok := table[Default]
	return value, ok
}

// Selector resolves role for the vocabulary's version, falling back to the
// version-less default.
func (v *Vocabulary) Selector(role Role) (interfaces.Locator, error) {
	loc, ok := lookup(selectorTable[role], v.version)
	if !ok {
		return interfaces.Locator{}, fmt.Errorf("no selector for role %q", role)
	}
	return loc, nil
}

// MustSelector is Selector for roles defined in this package's table.
func (v *Vocabulary) MustSelector(role Role) interfaces.Locator {
	loc, err := v.Selector(role)
	if err != nil {
		panic(err)
	}
	return loc
}

// Label resolves version-dependent UI text.
func (v *Vocabulary) Label(role LabelRole) string {
	label, _ := lookup(labelTable[role], v.version)
	return label
}

// GroupLabel returns the rendered label of a microservice group header.
func (v *Vocabulary) GroupLabel(group string) string {
	return v.Label(LabelGroupPrefix) + group
}
