package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/amsc/internal/services/report"
	"github.com/ternarybob/amsc/pkg/harness"
	"github.com/ternarybob/amsc/pkg/models"
)

// ErrExpectation is returned by steps whose check did not hold.
var ErrExpectation = errors.New("expectation not met")

// Variables set by steps.
const (
	varTransferUUID = "transfer_uuid"
	varTransferName = "transfer_name"
	varSIPUUID      = "sip_uuid"
	varJobUUID      = "job_uuid"
	varJobStatus    = "job_status"
	varChoice       = "choice"
	varAIPPath      = "aip_path"
	varPointerPath  = "pointer_path"
	varAIPDir       = "aip_dir"
	varRemoved      = "removed"
)

var builtinActions = map[string]action{
	"start_transfer":         startTransfer,
	"approve_transfer":       approveTransfer,
	"wait_for_unit":          waitForUnit,
	"get_sip_uuid":           getSIPUUID,
	"await_job":              awaitJob,
	"await_decision":         awaitDecision,
	"make_choice":            makeChoice,
	"parse_job":              parseJob,
	"expect_task_field":      expectTaskField,
	"normalization_report":   normalizationReport,
	"processing_config":      processingConfig,
	"await_archival_storage": awaitArchivalStorage,
	"search_storage_service": searchStorageService,
	"add_metadata":           addMetadata,
	"get_mets":               getMETS,
	"validate_pids":          validatePIDs,
	"download_aip":           downloadAIP,
	"download_pointer_file":  downloadPointerFile,
	"decompress_aip":         decompressAIP,
	"remove_all":             removeAll,
}

func startTransfer(ctx context.Context, h Orchestrator, st *state, p params) error {
	path, err := p.require("path")
	if err != nil {
		return err
	}
	unit, err := h.StartTransfer(ctx, models.TransferRequest{
		Path:      path,
		Name:      p.str("name"),
		Accession: p.str("accession"),
		Type:      models.TransferType(p.str("type")),
	})
	if err != nil {
		return err
	}
	st.set(varTransferUUID, unit.UUID)
	st.set(varTransferName, unit.Name)
	return nil
}

func approveTransfer(ctx context.Context, h Orchestrator, st *state, p params) error {
	uuid, err := unitUUID(ctx, h, st, p, models.UnitTransfer)
	if err != nil {
		return err
	}
	transferType := models.TransferType(p.strOr("type", string(models.TransferStandard)))
	return h.ApproveTransfer(ctx, uuid, transferType)
}

func waitForUnit(ctx context.Context, h Orchestrator, st *state, p params) error {
	unitType := unitTypeOf(p, models.UnitTransfer)
	name := p.strOr("name", st.vars[varTransferName])
	if name == "" {
		return fmt.Errorf("missing parameter %q", "name")
	}
	unit, err := h.WaitForUnitToAppear(ctx, name, unitType)
	if err != nil {
		return err
	}
	if unitType == models.UnitTransfer {
		st.set(varTransferUUID, unit.UUID)
		st.set(varTransferName, unit.Name)
	} else {
		st.set(varSIPUUID, unit.UUID)
	}
	return nil
}

func getSIPUUID(ctx context.Context, h Orchestrator, st *state, p params) error {
	_, err := sipUUID(ctx, h, st, p)
	return err
}

func awaitJob(ctx context.Context, h Orchestrator, st *state, p params) error {
	return await(ctx, h, st, p, h.AwaitJobCompletion)
}

func awaitDecision(ctx context.Context, h Orchestrator, st *state, p params) error {
	return await(ctx, h, st, p, h.AwaitDecisionPoint)
}

type awaitFunc func(ctx context.Context, microservice, unitUUID string, unitType models.UnitType) (string, models.JobStatus, error)

func await(ctx context.Context, h Orchestrator, st *state, p params, fn awaitFunc) error {
	microservice, err := p.require("microservice")
	if err != nil {
		return err
	}
	unitType := unitTypeOf(p, models.UnitTransfer)
	uuid, err := unitUUID(ctx, h, st, p, unitType)
	if err != nil {
		return err
	}
	jobUUID, status, err := fn(ctx, microservice, uuid, unitType)
	if err != nil {
		return err
	}
	st.set(varJobUUID, jobUUID)
	st.set(varJobStatus, string(status))
	return expectStatus(p, microservice, status)
}

func expectStatus(p params, microservice string, status models.JobStatus) error {
	want := p.str("expect_status")
	if want != "" && models.JobStatus(want) != status {
		return fmt.Errorf("%w: job %q is %q, want %q", ErrExpectation, microservice, status, want)
	}
	return nil
}

func makeChoice(ctx context.Context, h Orchestrator, st *state, p params) error {
	decision, err := p.require("decision_point")
	if err != nil {
		return err
	}
	choice, err := p.require("choice")
	if err != nil {
		return err
	}
	unitType := unitTypeOf(p, models.UnitTransfer)
	uuid, err := unitUUID(ctx, h, st, p, unitType)
	if err != nil {
		return err
	}
	picked, err := h.MakeChoice(ctx, choice, decision, uuid, unitType)
	if err != nil {
		return err
	}
	st.set(varChoice, picked.Label)
	return nil
}

func parseJob(ctx context.Context, h Orchestrator, st *state, p params) error {
	microservice, err := p.require("microservice")
	if err != nil {
		return err
	}
	unitType := unitTypeOf(p, models.UnitTransfer)
	uuid, err := unitUUID(ctx, h, st, p, unitType)
	if err != nil {
		return err
	}
	detail, err := h.ParseJob(ctx, microservice, uuid, unitType)
	if err != nil {
		return err
	}
	st.job = detail
	st.set(varJobUUID, detail.Job.UUID)
	st.set(varJobStatus, string(detail.Status))
	return expectStatus(p, microservice, detail.Status)
}

// expectTaskField checks a field of the tasks of the last parsed job.
// match "all" (the default) requires every task to carry value, "any" at
// least one, "none" no task.
func expectTaskField(ctx context.Context, h Orchestrator, st *state, p params) error {
	if st.job == nil {
		return errors.New("no job parsed yet: run parse_job first")
	}
	field, err := p.require("field")
	if err != nil {
		return err
	}
	field = report.NormalizeKey(field)
	want := p.str("value")
	match := p.strOr("match", "all")

	hits := 0
	for _, task := range st.job.Tasks {
		if task.Fields[field] == want {
			hits++
		}
	}
	total := len(st.job.Tasks)

	var ok bool
	switch match {
	case "all":
		ok = total > 0 && hits == total
	case "any":
		ok = hits > 0
	case "none":
		ok = hits == 0
	default:
		return fmt.Errorf("unknown match %q", match)
	}
	if !ok {
		return fmt.Errorf("%w: %d of %d tasks of job %s have %s = %q (match %s)",
			ErrExpectation, hits, total, st.job.Job.UUID, field, want, match)
	}
	return nil
}

func normalizationReport(ctx context.Context, h Orchestrator, st *state, p params) error {
	uuid, err := sipUUID(ctx, h, st, p)
	if err != nil {
		return err
	}
	rows, err := h.ParseNormalizationReport(ctx, uuid)
	if err != nil {
		return err
	}
	st.rows = rows
	want, set, err := p.integer("expect_rows")
	if err != nil {
		return err
	}
	if set && len(rows) != want {
		return fmt.Errorf("%w: normalization report has %d rows, want %d", ErrExpectation, len(rows), want)
	}
	return nil
}

// processingConfig sets one decision, picked by "value", "index" or
// "choice" in that order, and saves the form when "save" is true.
func processingConfig(ctx context.Context, h Orchestrator, st *state, p params) error {
	decision, err := p.require("decision")
	if err != nil {
		return err
	}
	index, hasIndex, err := p.integer("index")
	if err != nil {
		return err
	}
	var choice harness.ProcessingChoice
	switch {
	case p.str("value") != "":
		choice = harness.ChoiceValue(p.str("value"))
	case hasIndex:
		choice = harness.ChoiceAt(index)
	default:
		text, err := p.require("choice")
		if err != nil {
			return err
		}
		choice = harness.ChoiceText(text)
	}
	if err := h.SetProcessingConfigDecision(ctx, decision, choice); err != nil {
		return err
	}
	if p.boolean("save") {
		return h.SaveProcessingConfig(ctx)
	}
	return nil
}

func awaitArchivalStorage(ctx context.Context, h Orchestrator, st *state, p params) error {
	uuid, err := sipUUID(ctx, h, st, p)
	if err != nil {
		return err
	}
	found, err := h.WaitForAIPInArchivalStorage(ctx, uuid)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: AIP %s not indexed in archival storage", ErrExpectation, uuid)
	}
	return nil
}

func searchStorageService(ctx context.Context, h Orchestrator, st *state, p params) error {
	uuid := p.str("aip_uuid")
	if uuid == "" {
		var err error
		if uuid, err = sipUUID(ctx, h, st, p); err != nil {
			return err
		}
	}
	rows, err := h.SearchForAIPInStorageService(ctx, uuid)
	if err != nil {
		return err
	}
	st.rows = rows
	want, set, err := p.integer("expect_rows")
	if err != nil {
		return err
	}
	if !set {
		want = 1
	}
	if len(rows) != want {
		return fmt.Errorf("%w: Storage Service lists %d packages for %s, want %d", ErrExpectation, len(rows), uuid, want)
	}
	return nil
}

func addMetadata(ctx context.Context, h Orchestrator, st *state, p params) error {
	uuid, err := sipUUID(ctx, h, st, p)
	if err != nil {
		return err
	}
	return h.AddDummyMetadata(ctx, uuid)
}

func getMETS(ctx context.Context, h Orchestrator, st *state, p params) error {
	uuid, err := sipUUID(ctx, h, st, p)
	if err != nil {
		return err
	}
	doc, err := h.GetMETS(ctx, p.strOr("transfer_name", st.vars[varTransferName]), uuid)
	if err != nil {
		return err
	}
	st.mets = doc
	return nil
}

func validatePIDs(ctx context.Context, h Orchestrator, st *state, p params) error {
	if st.mets == nil {
		return errors.New("no METS document read yet: run get_mets first")
	}
	return h.ValidatePIDs(ctx, st.mets, p.str("accession"))
}

func downloadAIP(ctx context.Context, h Orchestrator, st *state, p params) error {
	uuid := p.str("aip_uuid")
	if uuid == "" {
		var err error
		if uuid, err = sipUUID(ctx, h, st, p); err != nil {
			return err
		}
	}
	path, err := h.DownloadAIP(ctx, p.strOr("transfer_name", st.vars[varTransferName]), uuid)
	if err != nil {
		return err
	}
	st.set(varAIPPath, path)
	return nil
}

func downloadPointerFile(ctx context.Context, h Orchestrator, st *state, p params) error {
	uuid := p.str("aip_uuid")
	if uuid == "" {
		var err error
		if uuid, err = sipUUID(ctx, h, st, p); err != nil {
			return err
		}
	}
	path, err := h.DownloadPointerFile(ctx, uuid)
	if err != nil {
		return err
	}
	st.set(varPointerPath, path)
	return nil
}

func decompressAIP(ctx context.Context, h Orchestrator, st *state, p params) error {
	path := p.strOr("path", st.vars[varAIPPath])
	if path == "" {
		return errors.New("no AIP downloaded yet: run download_aip first")
	}
	dir, ok := h.DecompressAIP(ctx, path)
	if !ok {
		return fmt.Errorf("failed to decompress %s", path)
	}
	st.set(varAIPDir, dir)
	return nil
}

func removeAll(ctx context.Context, h Orchestrator, st *state, p params) error {
	removed, err := h.RemoveAllUnits(ctx, unitTypeOf(p, models.UnitTransfer))
	if err != nil {
		return err
	}
	st.set(varRemoved, fmt.Sprint(removed))
	return nil
}

func unitTypeOf(p params, fallback models.UnitType) models.UnitType {
	switch p.str("unit") {
	case string(models.UnitTransfer):
		return models.UnitTransfer
	case string(models.UnitIngest), "sip":
		return models.UnitIngest
	}
	return fallback
}

// unitUUID is the "uuid" parameter, else the transfer or SIP of the run.
func unitUUID(ctx context.Context, h Orchestrator, st *state, p params, unitType models.UnitType) (string, error) {
	if uuid := p.str("uuid"); uuid != "" {
		return uuid, nil
	}
	if unitType == models.UnitIngest {
		return sipUUID(ctx, h, st, p)
	}
	uuid := st.vars[varTransferUUID]
	if uuid == "" {
		return "", errors.New("no transfer started yet: set uuid or run start_transfer first")
	}
	return uuid, nil
}

// sipUUID is the "sip_uuid" parameter, else the run's SIP, looked up from
// the transfer name on first use.
func sipUUID(ctx context.Context, h Orchestrator, st *state, p params) (string, error) {
	if uuid := p.strOr("sip_uuid", st.vars[varSIPUUID]); uuid != "" {
		return uuid, nil
	}
	name := p.strOr("transfer_name", st.vars[varTransferName])
	if name == "" {
		return "", errors.New("no SIP known: set sip_uuid or run start_transfer first")
	}
	uuid, err := h.GetSIPUUID(ctx, name)
	if err != nil {
		return "", err
	}
	st.set(varSIPUUID, uuid)
	return uuid, nil
}
