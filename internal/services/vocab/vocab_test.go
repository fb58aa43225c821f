package vocab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/pkg/models"
)

func newVocab(t *testing.T, version Version, opts ...Option) *Vocabulary {
	t.Helper()
	v, err := New(version, arbor.NewLogger(), opts...)
	require.NoError(t, err)
	return v
}

func TestSquash(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"Approve normalization", "approve normalization"},
		{"  Store AIP  ", "Store AIP"},
		{"Store AIP", "StoreAIP"},
		{"Verify\tSIP compliance", "verify sip compliance "},
		{"Create SIP(s)", "create sip (s)"},
	}

	for _, tt := range tests {
		t.Run(tt.a, func(t *testing.T) {
			assert.Equal(t, Squash(tt.a), Squash(tt.b))
			assert.True(t, SquashEqual(tt.a, tt.b))
		})
	}

	assert.NotEqual(t, Squash("Yes"), Squash("No"))
}

func TestSquash_IdempotentOverVocabulary(t *testing.T) {
	v := newVocab(t, V17)

	variants := func(s string) []string {
		return []string{
			strings.ToUpper(s),
			strings.ToLower(s),
			"  " + s + "\t",
			strings.ReplaceAll(s, " ", "  "),
			strings.ReplaceAll(s, " ", ""),
		}
	}

	for name, groups := range v.tables.Groups {
		assert.Equal(t, Squash(name), Squash(Squash(name)), name)
		for _, variant := range variants(name) {
			assert.Equal(t, Squash(name), Squash(variant), "%q vs %q", name, variant)
		}
		for _, group := range groups {
			assert.Equal(t, Squash(group), Squash(Squash(group)), group)
			for _, variant := range variants(group) {
				assert.Equal(t, Squash(group), Squash(variant), "%q vs %q", group, variant)
			}
		}
	}
}

func TestSelector_FallsBackToDefault(t *testing.T) {
	v16 := newVocab(t, V16)
	v17 := newVocab(t, V17)
	unknown := newVocab(t, Version("1.9"))

	tests := []struct {
		name     string
		vocab    *Vocabulary
		role     Role
		expected interfaces.Locator
	}{
		{"1.6 uses default ss login", v16, RoleSSLoginSubmit, interfaces.CSS(`input[value=login]`)},
		{"1.7 overrides ss login", v17, RoleSSLoginSubmit, interfaces.CSS(`input[value="Log in"]`)},
		{"1.7 overrides registration", v17, RoleSSDefaultRegistration, interfaces.CSS(`input[type=submit]`)},
		{"unknown version falls back", unknown, RoleSSDefaultRegistration, interfaces.CSS(`input[name=use_default]`)},
		{"shared role", v17, RoleJob, interfaces.CSS("div.job")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := tt.vocab.Selector(tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, loc)
		})
	}

	_, err := v17.Selector(Role("no_such_role"))
	assert.Error(t, err)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Micro-service: Normalize", newVocab(t, V16).GroupLabel("Normalize"))
	assert.Equal(t, "Microservice: Normalize", newVocab(t, V17).GroupLabel("Normalize"))
	assert.Equal(t, "Next Page", newVocab(t, V16).Label(LabelNextPage))
	assert.Equal(t, "Next page", newVocab(t, V17).Label(LabelNextPage))
	assert.Equal(t, "Next page", newVocab(t, Version("2.0")).Label(LabelNextPage))
}

func TestTaskStyle(t *testing.T) {
	assert.Equal(t, TaskStyleLegacy, V16.TaskStyle())
	assert.Equal(t, TaskStyleCurrent, V17.TaskStyle())
	assert.Equal(t, TaskStyleLegacy, Version("1.5").TaskStyle())
}

func TestNormalizeMicroservice(t *testing.T) {
	v16 := newVocab(t, V16)
	v17 := newVocab(t, V17)

	assert.Equal(t, "Store AIP Review", v17.NormalizeMicroservice("Store AIP (review)"))
	assert.Equal(t, "Approve normalization Review", v17.NormalizeMicroservice("Approve normalization (review)"))
	assert.Equal(t, "Store AIP (review)", v16.NormalizeMicroservice("Store AIP Review"))
	assert.Equal(t, "Approve normalization (review)", v16.NormalizeMicroservice("Approve normalization Review"))
	assert.Equal(t, "Store AIP (review)", v16.NormalizeMicroservice("Store AIP (review)"))
	assert.Equal(t, "Scan for viruses", v17.NormalizeMicroservice("Scan for viruses"))
}

func TestResolve(t *testing.T) {
	v := newVocab(t, V17)

	tests := []struct {
		name          string
		input         string
		expectedName  string
		expectedGroup string
	}{
		{"exact", "Assign file UUIDs to objects", "Assign file UUIDs to objects", "Assign file UUIDs and checksums"},
		{"squash fallback", "assign FILE uuids to objects ", "assign FILE uuids to objects ", "Assign file UUIDs and checksums"},
		{"renamed for version", "Store AIP (review)", "Store AIP Review", "Store AIP"},
		{"explicit group", "Set file permissions|Normalize", "Set file permissions", "Normalize"},
		{"ambiguous takes first", "Move to processing directory", "Move to processing directory", "Verify transfer compliance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, group, err := v.Resolve(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedName, name)
			assert.Equal(t, tt.expectedGroup, group)
		})
	}

	_, _, err := v.Resolve("Launch the rockets")
	assert.ErrorIs(t, err, models.ErrUnknownMicroservice)
}

func TestResolve_Strict(t *testing.T) {
	v := newVocab(t, V17, WithStrictGroups(true))

	_, _, err := v.Resolve("Identify file format")
	assert.ErrorIs(t, err, models.ErrAmbiguousMicroservice)

	_, group, err := v.Resolve("Identify file format|Normalize")
	require.NoError(t, err)
	assert.Equal(t, "Normalize", group)

	// Duplicate entries in the table collapse to one group.
	_, group, err = v.Resolve("Verify mets_structmap.xml compliance")
	require.NoError(t, err)
	assert.Equal(t, "Verify transfer compliance", group)
}

func TestOverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocabulary.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[groups]
"Run custom script" = ["Custom"]
"Scan for viruses" = ["Virus scanning"]
`), 0644))

	v := newVocab(t, V17, WithOverlayFile(path))

	_, group, err := v.Resolve("Run custom script")
	require.NoError(t, err)
	assert.Equal(t, "Custom", group)

	_, group, err = v.Resolve("Scan for viruses")
	require.NoError(t, err)
	assert.Equal(t, "Virus scanning", group)

	// Missing overlay keeps the embedded tables.
	v = newVocab(t, V17, WithOverlayFile(filepath.Join(t.TempDir(), "missing.toml")))
	_, group, err = v.Resolve("Scan for viruses")
	require.NoError(t, err)
	assert.Equal(t, "Scan for viruses", group)
}

func TestApproveTransferOption(t *testing.T) {
	v := newVocab(t, V17)

	id, err := v.ApproveTransferOption(models.TransferStandard)
	require.NoError(t, err)
	assert.Equal(t, "6953950b-c101-4f4c-a0c3-0cd0684afe5e", id)

	id, err = v.ApproveTransferOption("")
	require.NoError(t, err)
	assert.Equal(t, "6953950b-c101-4f4c-a0c3-0cd0684afe5e", id)

	id, err = v.ApproveTransferOption("Zipped bag")
	require.NoError(t, err)
	assert.Equal(t, "167dc382-4ab1-4051-8e22-e7f1c1bf3e6f", id)

	_, err = v.ApproveTransferOption("floppy disk")
	assert.Error(t, err)
}

func TestProcessingConfigID(t *testing.T) {
	v := newVocab(t, V17)

	id, err := v.ProcessingConfigID("Bind PIDs")
	require.NoError(t, err)
	assert.Equal(t, "id_05357876-a095-4c11-86b5-a7fff01af668", id)

	id, err = v.ProcessingConfigID("store dip")
	require.NoError(t, err)
	assert.Equal(t, "id_cd844b6e-ab3c-4bc6-b34f-7103f88715de", id)

	id, err = v.ProcessingConfigID("(OCR)")
	require.NoError(t, err)
	assert.Equal(t, "id_7079be6d-3a25-41e6-a481-cee5f352fe6e", id)

	_, err = v.ProcessingConfigID("no such decision")
	assert.ErrorIs(t, err, models.ErrDecisionPointNotFound)
}
