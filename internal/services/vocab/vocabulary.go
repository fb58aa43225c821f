package vocab

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/pkg/models"
)

//go:embed vocabulary.toml
var embeddedVocabulary []byte

// tables is the TOML shape of a vocabulary file.
type tables struct {
	Groups           map[string][]string `toml:"groups"`
	ApproveTransfer  map[string]string   `toml:"approve_transfer"`
	ProcessingConfig map[string]string   `toml:"processing_config"`
}

// Vocabulary resolves logical names to what a specific dashboard version
// renders.
type Vocabulary struct {
	version Version
	strict  bool
	tables  tables
	logger  arbor.ILogger
}

// Option configures a Vocabulary.
type Option func(*Vocabulary)

// WithStrictGroups makes lookups of microservices that belong to more than
// one group fail instead of picking the first group.
func WithStrictGroups(strict bool) Option {
	return func(v *Vocabulary) {
		v.strict = strict
	}
}

// WithOverlayFile merges the tables of a user vocabulary file over the
// embedded ones. Entries in the file replace embedded entries with the same
// key.
func WithOverlayFile(path string) Option {
	return func(v *Vocabulary) {
		if path == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			v.logger.Warn().Err(err).Str("path", path).Msg("Failed to read vocabulary overlay, using embedded vocabulary")
			return
		}
		if err := v.merge(data); err != nil {
			v.logger.Warn().Err(err).Str("path", path).Msg("Failed to parse vocabulary overlay, using embedded vocabulary")
			return
		}
		v.logger.Debug().Str("path", path).Msg("Applied vocabulary overlay")
	}
}

// New creates a Vocabulary for version from the embedded reference tables.
func New(version Version, logger arbor.ILogger, opts ...Option) (*Vocabulary, error) {
	v := &Vocabulary{
		version: version,
		logger:  logger,
		tables: tables{
			Groups:           make(map[string][]string),
			ApproveTransfer:  make(map[string]string),
			ProcessingConfig: make(map[string]string),
		},
	}
	if err := v.merge(embeddedVocabulary); err != nil {
		return nil, fmt.Errorf("failed to parse embedded vocabulary: %w", err)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Vocabulary) merge(data []byte) error {
	var t tables
	if err := toml.Unmarshal(data, &t); err != nil {
		return err
	}
	for k, groups := range t.Groups {
		v.tables.Groups[k] = dedupe(groups)
	}
	for k, id := range t.ApproveTransfer {
		v.tables.ApproveTransfer[k] = id
	}
	for k, id := range t.ProcessingConfig {
		v.tables.ProcessingConfig[k] = id
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if !seen[value] {
			seen[value] = true
			result = append(result, value)
		}
	}
	return result
}

// Version returns the dashboard version the vocabulary resolves for.
func (v *Vocabulary) Version() Version {
	return v.version
}

// Groups returns every group the microservice is known to belong to. The
// name is matched exactly first, then squashed.
func (v *Vocabulary) Groups(microservice string) ([]string, error) {
	if groups, ok := v.tables.Groups[microservice]; ok {
		return groups, nil
	}
	for name, groups := range v.tables.Groups {
		if SquashEqual(name, microservice) {
			return groups, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownMicroservice, microservice)
}

// Resolve returns the microservice name (normalized for the vocabulary's
// version) and its owning group. A caller can name the group explicitly
// with "microservice|group". A name listed under several groups resolves to
// the first one with a warning, or fails in strict mode.
func (v *Vocabulary) Resolve(microservice string) (name, group string, err error) {
	if parts := strings.Split(microservice, "|"); len(parts) == 2 {
		return v.NormalizeMicroservice(parts[0]), parts[1], nil
	}

	name = v.NormalizeMicroservice(microservice)
	groups, err := v.Groups(name)
	if err != nil {
		return "", "", err
	}
	if len(groups) == 0 {
		return "", "", fmt.Errorf("%w: %q has no group", models.ErrUnknownMicroservice, name)
	}
	if len(groups) > 1 {
		if v.strict {
			return "", "", fmt.Errorf("%w: %q is in %s; use \"name|group\"",
				models.ErrAmbiguousMicroservice, name, strings.Join(groups, ", "))
		}
		v.logger.Warn().
			Str("microservice", name).
			Strs("groups", groups).
			Str("chosen", groups[0]).
			Msg("Microservice belongs to multiple groups, using the first")
	}
	return name, groups[0], nil
}

// ApproveTransferOption returns the value of the "Approve transfer" option
// for a transfer type.
func (v *Vocabulary) ApproveTransferOption(transferType models.TransferType) (string, error) {
	if transferType == "" {
		transferType = models.TransferStandard
	}
	for k, id := range v.tables.ApproveTransfer {
		if SquashEqual(k, string(transferType)) {
			return id, nil
		}
	}
	return "", fmt.Errorf("no approve transfer option for transfer type %q", transferType)
}

// ProcessingConfigID returns the form field id of a processing configuration
// decision. The label is matched exactly, then as a case-insensitive prefix,
// then as a case-insensitive substring.
func (v *Vocabulary) ProcessingConfigID(label string) (string, error) {
	if id, ok := v.tables.ProcessingConfig[label]; ok {
		return id, nil
	}
	keys := make([]string, 0, len(v.tables.ProcessingConfig))
	for k := range v.tables.ProcessingConfig {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lower := strings.ToLower(label)
	var contains string
	for _, k := range keys {
		id := v.tables.ProcessingConfig[k]
		kl := strings.ToLower(k)
		if strings.HasPrefix(kl, lower) {
			return id, nil
		}
		if contains == "" && strings.Contains(kl, lower) {
			contains = id
		}
	}
	if contains != "" {
		return contains, nil
	}
	return "", fmt.Errorf("%w: no processing configuration decision matches %q", models.ErrDecisionPointNotFound, label)
}
