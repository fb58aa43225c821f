package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/services/artifacts"
	"github.com/ternarybob/amsc/internal/services/mets"
	"github.com/ternarybob/amsc/pkg/harness"
	"github.com/ternarybob/amsc/pkg/models"
)

const (
	transferUUID = "11111111-2222-4333-8444-555555555555"
	sipUUIDValue = "99999999-8888-4777-8666-555555555555"
)

// fakeHarness records calls as "Method arg arg" strings.
type fakeHarness struct {
	calls    []string
	failOn   string
	status   models.JobStatus
	job      *models.JobDetail
	rows     []models.ReportRow
	found    bool
	captures int
}

var errFake = errors.New("fake failure")

func (f *fakeHarness) record(call string, args ...interface{}) error {
	parts := []string{call}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	f.calls = append(f.calls, strings.Join(parts, " "))
	if f.failOn == call {
		return errFake
	}
	return nil
}

func (f *fakeHarness) StartTransfer(ctx context.Context, req models.TransferRequest) (models.Unit, error) {
	err := f.record("StartTransfer", req.Path, req.Name, req.Accession)
	return models.Unit{UUID: transferUUID, Name: req.Name, Type: models.UnitTransfer}, err
}

func (f *fakeHarness) ApproveTransfer(ctx context.Context, uuid string, t models.TransferType) error {
	return f.record("ApproveTransfer", uuid, t)
}

func (f *fakeHarness) WaitForUnitToAppear(ctx context.Context, name string, ut models.UnitType) (models.Unit, error) {
	err := f.record("WaitForUnitToAppear", name, ut)
	return models.Unit{UUID: sipUUIDValue, Name: name, Type: ut}, err
}

func (f *fakeHarness) GetSIPUUID(ctx context.Context, name string) (string, error) {
	return sipUUIDValue, f.record("GetSIPUUID", name)
}

func (f *fakeHarness) AwaitJobCompletion(ctx context.Context, ms, uuid string, ut models.UnitType) (string, models.JobStatus, error) {
	return "job-1", f.status, f.record("AwaitJobCompletion", ms, uuid, ut)
}

func (f *fakeHarness) AwaitDecisionPoint(ctx context.Context, ms, uuid string, ut models.UnitType) (string, models.JobStatus, error) {
	return "job-2", models.StatusAwaitingDecision, f.record("AwaitDecisionPoint", ms, uuid, ut)
}

func (f *fakeHarness) MakeChoice(ctx context.Context, choice, dp, uuid string, ut models.UnitType) (models.DecisionChoice, error) {
	return models.DecisionChoice{Index: 1, Label: choice + " (picked)"}, f.record("MakeChoice", choice, dp, uuid, ut)
}

func (f *fakeHarness) ParseJob(ctx context.Context, ms, uuid string, ut models.UnitType) (*models.JobDetail, error) {
	return f.job, f.record("ParseJob", ms, uuid, ut)
}

func (f *fakeHarness) ParseNormalizationReport(ctx context.Context, uuid string) ([]models.ReportRow, error) {
	return f.rows, f.record("ParseNormalizationReport", uuid)
}

func (f *fakeHarness) SetProcessingConfigDecision(ctx context.Context, decision string, choice harness.ProcessingChoice) error {
	return f.record("SetProcessingConfigDecision", decision, choice)
}

func (f *fakeHarness) SaveProcessingConfig(ctx context.Context) error {
	return f.record("SaveProcessingConfig")
}

func (f *fakeHarness) WaitForAIPInArchivalStorage(ctx context.Context, uuid string) (bool, error) {
	return f.found, f.record("WaitForAIPInArchivalStorage", uuid)
}

func (f *fakeHarness) GetMETS(ctx context.Context, name, uuid string) (*mets.Document, error) {
	doc, err := mets.ParseString(`<mets:mets xmlns:mets="http://www.loc.gov/METS/"/>`)
	if err != nil {
		return nil, err
	}
	return doc, f.record("GetMETS", name, uuid)
}

func (f *fakeHarness) ValidatePIDs(ctx context.Context, doc *mets.Document, acc string) error {
	return f.record("ValidatePIDs", acc)
}

func (f *fakeHarness) DownloadAIP(ctx context.Context, name, uuid string) (string, error) {
	return "/tmp/" + name + "-" + uuid + ".7z", f.record("DownloadAIP", name, uuid)
}

func (f *fakeHarness) DownloadPointerFile(ctx context.Context, uuid string) (string, error) {
	return "/tmp/pointer." + uuid + ".xml", f.record("DownloadPointerFile", uuid)
}

func (f *fakeHarness) SearchForAIPInStorageService(ctx context.Context, uuid string) ([]models.ReportRow, error) {
	return f.rows, f.record("SearchForAIPInStorageService", uuid)
}

func (f *fakeHarness) AddDummyMetadata(ctx context.Context, uuid string) error {
	return f.record("AddDummyMetadata", uuid)
}

func (f *fakeHarness) DecompressAIP(ctx context.Context, path string) (string, bool) {
	return strings.TrimSuffix(path, ".7z"), f.record("DecompressAIP", path) == nil
}

func (f *fakeHarness) RemoveAllUnits(ctx context.Context, ut models.UnitType) (int, error) {
	return 3, f.record("RemoveAllUnits", ut)
}

func (f *fakeHarness) CaptureFailure(ctx context.Context, name string) (artifacts.Capture, error) {
	f.captures++
	return artifacts.Capture{Screenshot: "/artifacts/" + name + ".png", Source: "/artifacts/" + name + ".html"}, nil
}

func step(action string, config map[string]interface{}) Step {
	return Step{Action: action, Config: config}
}

func run(t *testing.T, f *fakeHarness, steps ...Step) (*Result, error) {
	t.Helper()
	sc := &Scenario{Name: "test", Vars: map[string]string{"accession": "acc-9"}, Steps: steps}
	return NewRunner(f, arbor.NewLogger()).Run(context.Background(), sc)
}

func TestRun_ThreadsVariablesBetweenSteps(t *testing.T) {
	f := &fakeHarness{status: models.StatusCompleted}
	result, err := run(t, f,
		step("start_transfer", map[string]interface{}{"path": "home/demo", "name": "demo", "accession": "{accession}"}),
		step("await_job", map[string]interface{}{"microservice": "Scan for viruses", "expect_status": "Completed successfully"}),
		step("make_choice", map[string]interface{}{"decision_point": "Approve normalization (review)", "choice": "Approve", "unit": "ingest"}),
		step("get_mets", nil),
		step("validate_pids", map[string]interface{}{"accession": "{accession}"}),
		step("download_aip", nil),
		step("decompress_aip", nil),
	)
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Len(t, result.Steps, 7)

	assert.Equal(t, []string{
		"StartTransfer home/demo demo acc-9",
		"AwaitJobCompletion Scan for viruses " + transferUUID + " transfer",
		"GetSIPUUID demo",
		"MakeChoice Approve Approve normalization (review) " + sipUUIDValue + " ingest",
		"GetMETS demo " + sipUUIDValue,
		"ValidatePIDs acc-9",
		"DownloadAIP demo " + sipUUIDValue,
		"DecompressAIP /tmp/demo-" + sipUUIDValue + ".7z",
	}, f.calls)

	assert.Equal(t, transferUUID, result.Vars["transfer_uuid"])
	assert.Equal(t, sipUUIDValue, result.Vars["sip_uuid"])
	assert.Equal(t, "job-1", result.Vars["job_uuid"])
	assert.Equal(t, "Approve (picked)", result.Vars["choice"])
	assert.Equal(t, "/tmp/demo-"+sipUUIDValue, result.Vars["aip_dir"])
}

func TestRun_ReferencesInNestedConfig(t *testing.T) {
	f := &fakeHarness{}
	sc := &Scenario{
		Name: "refs",
		Vars: map[string]string{"sip_uuid": sipUUIDValue},
		Steps: []Step{
			step("await_archival_storage", map[string]interface{}{"sip_uuid": "{sip_uuid}"}),
		},
	}
	f.found = true
	_, err := NewRunner(f, arbor.NewLogger()).Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"WaitForAIPInArchivalStorage " + sipUUIDValue}, f.calls)
	assert.Equal(t, "{sip_uuid}", sc.Steps[0].Config["sip_uuid"], "the scenario is left untouched")
}

func TestRun_StopsAndCapturesOnFailure(t *testing.T) {
	f := &fakeHarness{failOn: "AwaitDecisionPoint"}
	result, err := run(t, f,
		step("start_transfer", map[string]interface{}{"path": "home/demo", "name": "demo"}),
		Step{Name: "decide", Action: "await_decision", Config: map[string]interface{}{"microservice": "Approve standard transfer"}},
		step("remove_all", nil),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepFailed)
	assert.ErrorIs(t, err, errFake)
	assert.Contains(t, err.Error(), "decide")

	require.Len(t, result.Steps, 2)
	require.NotNil(t, result.Steps[1].Capture)
	assert.Equal(t, "/artifacts/test-decide.png", result.Steps[1].Capture.Screenshot)
	assert.Equal(t, 1, f.captures)
	assert.NotContains(t, f.calls, "RemoveAllUnits transfer")
}

func TestRun_ContinuesWhenAllowed(t *testing.T) {
	f := &fakeHarness{status: models.StatusFailed}
	result, err := run(t, f,
		Step{Action: "await_job", OnError: OnErrorContinue, Config: map[string]interface{}{
			"microservice": "Scan for viruses", "uuid": transferUUID, "expect_status": "Completed successfully",
		}},
		step("remove_all", map[string]interface{}{"unit": "ingest"}),
	)
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.ErrorIs(t, result.Steps[0].Err, ErrExpectation)
	assert.NoError(t, result.Steps[1].Err)
	assert.Equal(t, "3", result.Vars["removed"])
	assert.Contains(t, f.calls, "RemoveAllUnits ingest")
}

func TestRun_RejectsUnknownActionBeforeRunning(t *testing.T) {
	f := &fakeHarness{}
	_, err := run(t, f,
		step("start_transfer", map[string]interface{}{"path": "home/demo"}),
		step("launch_rocket", nil),
	)
	require.Error(t, err)
	assert.Empty(t, f.calls)
}

func TestRun_StepPrerequisites(t *testing.T) {
	tests := []struct {
		name string
		step Step
	}{
		{"await without transfer", step("await_job", map[string]interface{}{"microservice": "Scan for viruses"})},
		{"missing microservice", step("parse_job", map[string]interface{}{"uuid": transferUUID})},
		{"expect before parse", step("expect_task_field", map[string]interface{}{"field": "exit_code", "value": "0"})},
		{"validate before mets", step("validate_pids", nil)},
		{"decompress before download", step("decompress_aip", nil)},
		{"start without path", step("start_transfer", nil)},
		{"bad index", step("processing_config", map[string]interface{}{"decision": "Bind PIDs", "index": "first"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeHarness{}
			_, err := run(t, f, tt.step)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStepFailed)
			assert.Empty(t, f.calls)
		})
	}
}

func TestExpectTaskField(t *testing.T) {
	job := &models.JobDetail{
		Job: models.Job{UUID: "job-3"},
		Tasks: map[string]*models.Task{
			"t1": {Fields: map[string]string{"exit_code": "0"}},
			"t2": {Fields: map[string]string{"exit_code": "1"}},
		},
	}
	tests := []struct {
		match   string
		value   string
		wantErr bool
	}{
		{"all", "0", true},
		{"any", "0", false},
		{"none", "2", false},
		{"none", "1", true},
		{"", "1", true},
	}
	for _, tt := range tests {
		t.Run(tt.match+"="+tt.value, func(t *testing.T) {
			f := &fakeHarness{job: job, status: models.StatusCompleted}
			config := map[string]interface{}{"field": "Exit code", "value": tt.value}
			if tt.match != "" {
				config["match"] = tt.match
			}
			_, err := run(t, f,
				step("parse_job", map[string]interface{}{"microservice": "Characterize and extract metadata", "uuid": sipUUIDValue, "unit": "ingest"}),
				step("expect_task_field", config),
			)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrExpectation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProcessingConfigStep(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
		want   []string
	}{
		{
			"by text and save",
			map[string]interface{}{"decision": "Bind PIDs", "choice": "No", "save": true},
			[]string{"SetProcessingConfigDecision Bind PIDs No", "SaveProcessingConfig"},
		},
		{
			"by value",
			map[string]interface{}{"decision": "Bind PIDs", "value": "b-yes"},
			[]string{"SetProcessingConfigDecision Bind PIDs value=b-yes"},
		},
		{
			"by index from toml",
			map[string]interface{}{"decision": "Bind PIDs", "index": int64(2)},
			[]string{"SetProcessingConfigDecision Bind PIDs index=2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeHarness{}
			_, err := run(t, f, step("processing_config", tt.config))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.calls)
		})
	}
}

func TestNormalizationReportRowCount(t *testing.T) {
	f := &fakeHarness{rows: []models.ReportRow{{"file_name": "a.jpg"}}}
	_, err := run(t, f, step("normalization_report", map[string]interface{}{"sip_uuid": sipUUIDValue, "expect_rows": 2}))
	assert.ErrorIs(t, err, ErrExpectation)

	_, err = run(t, f, step("normalization_report", map[string]interface{}{"sip_uuid": sipUUIDValue, "expect_rows": 1}))
	assert.NoError(t, err)
}

func TestStorageServiceSteps(t *testing.T) {
	f := &fakeHarness{rows: []models.ReportRow{{"uuid": sipUUIDValue}}}
	result, err := run(t, f,
		step("add_metadata", map[string]interface{}{"sip_uuid": sipUUIDValue}),
		step("search_storage_service", map[string]interface{}{"aip_uuid": sipUUIDValue}),
		step("download_pointer_file", map[string]interface{}{"aip_uuid": sipUUIDValue}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"AddDummyMetadata " + sipUUIDValue,
		"SearchForAIPInStorageService " + sipUUIDValue,
		"DownloadPointerFile " + sipUUIDValue,
	}, f.calls)
	assert.Equal(t, "/tmp/pointer."+sipUUIDValue+".xml", result.Vars["pointer_path"])

	f = &fakeHarness{}
	_, err = run(t, f, step("search_storage_service", map[string]interface{}{"aip_uuid": sipUUIDValue}))
	assert.ErrorIs(t, err, ErrExpectation)
}

func TestActions(t *testing.T) {
	names := NewRunner(&fakeHarness{}, arbor.NewLogger()).Actions()
	assert.Contains(t, names, "start_transfer")
	assert.Contains(t, names, "expect_task_field")
	assert.IsIncreasing(t, names)
}
