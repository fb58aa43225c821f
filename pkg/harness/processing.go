package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/amsc/internal/common"
	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/vocab"
)

// ProcessingChoice identifies the option to pick for a processing
// configuration decision. Build one with ChoiceText, ChoiceValue or
// ChoiceAt.
type ProcessingChoice struct {
	text     string
	value    string
	index    int
	hasIndex bool
}

// ChoiceText picks the option labelled text. For a text field it is the
// value typed in.
func ChoiceText(text string) ProcessingChoice { return ProcessingChoice{text: text} }

// ChoiceValue picks the option whose value attribute is value.
func ChoiceValue(value string) ProcessingChoice { return ProcessingChoice{value: value} }

// ChoiceAt picks the option at index.
func ChoiceAt(index int) ProcessingChoice { return ProcessingChoice{index: index, hasIndex: true} }

func (c ProcessingChoice) String() string {
	switch {
	case c.value != "":
		return "value=" + c.value
	case c.hasIndex:
		return fmt.Sprintf("index=%d", c.index)
	}
	return c.text
}

// SetProcessingConfigDecision sets one decision of the default processing
// configuration. decision is a field id ("id_<uuid>"), a bare UUID or a
// decision label; labels are looked up in the vocabulary. The form is not
// saved until SaveProcessingConfig.
func (h *Harness) SetProcessingConfigDecision(ctx context.Context, decision string, choice ProcessingChoice) error {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return err
	}
	if err := h.navigate(ctx, s, h.ProcessingConfigURL(), false); err != nil {
		return err
	}

	fieldID, err := h.processingFieldID(decision)
	if err != nil {
		return err
	}
	el, err := s.FindElement(ctx, interfaces.ID(fieldID))
	if err != nil {
		return fmt.Errorf("processing decision %q: %w", decision, err)
	}
	tag, err := el.TagName(ctx)
	if err != nil {
		return err
	}

	if !strings.EqualFold(tag, "select") {
		if err := el.Clear(ctx); err != nil {
			return err
		}
		err = el.SendKeys(ctx, choice.text)
	} else {
		switch {
		case choice.value != "":
			err = selectByValue(ctx, el, choice.value)
		case choice.hasIndex:
			err = el.SelectByIndex(ctx, choice.index)
		default:
			err = selectByText(ctx, el, choice.text)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to set processing decision %q to %s: %w", decision, choice, err)
	}
	h.logger.Info().Str("decision", decision).Str("field", fieldID).Str("choice", choice.String()).Msg("Processing decision set")
	return nil
}

func (h *Harness) processingFieldID(decision string) (string, error) {
	switch {
	case strings.HasPrefix(decision, "id_"):
		return decision, nil
	case common.IsUUID(decision):
		return "id_" + decision, nil
	}
	return h.vocab.ProcessingConfigID(decision)
}

// SaveProcessingConfig submits the processing configuration form.
func (h *Harness) SaveProcessingConfig(ctx context.Context) error {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return err
	}
	if err := click(ctx, s, h.vocab.MustSelector(vocab.RoleProcessingConfigSave)); err != nil {
		return fmt.Errorf("failed to save processing configuration: %w", err)
	}
	h.logger.Info().Msg("Processing configuration saved")
	return nil
}
