package harness

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/internal/services/wait"
	"github.com/ternarybob/amsc/pkg/models"
)

// Transfer-browser lookups are short: a missing folder means the tree has
// not rendered it yet and the whole walk is retried.
const (
	folderTimeout   = time.Second
	childrenTimeout = 10 * time.Second
	removeTimeout   = 20 * time.Second

	treeScrollStep = 100
	treeScrollMax  = 2000
)

// The transfer tree joins one folder label to the labels of its children
// through this path.
const treeChildStep = "/following-sibling::treeitem/ul/li/"

// StartTransfer fills and submits the transfer form, waits for the new
// transfer to be listed and approves it. The returned unit carries the
// UUID read back from the page and the name the dashboard shows, which
// differs from req.Name when the dashboard renamed the transfer or when a
// zipped bag is named after its file.
func (h *Harness) StartTransfer(ctx context.Context, req models.TransferRequest) (models.Unit, error) {
	if err := validator.New().Struct(req); err != nil {
		return models.Unit{}, fmt.Errorf("invalid transfer request: %w", err)
	}
	if req.Type == "" {
		req.Type = models.TransferStandard
	}

	s, err := h.sessions.Current(ctx)
	if err != nil {
		return models.Unit{}, err
	}
	if err := h.navigate(ctx, s, h.TransferURL(), true); err != nil {
		return models.Unit{}, err
	}
	h.waiter.Present(ctx, s, h.vocab.MustSelector(vocab.RoleTransferName), 0)

	name, namePrefix := req.Name, false
	if req.Type != models.TransferStandard {
		sel, err := s.FindElement(ctx, h.vocab.MustSelector(vocab.RoleTransferType))
		if err != nil {
			return models.Unit{}, err
		}
		if err := selectByText(ctx, sel, string(req.Type)); err != nil {
			return models.Unit{}, fmt.Errorf("failed to set transfer type: %w", err)
		}
		// Selecting a type scrolls the page and hides the browse button.
		if err := s.Execute(ctx, "window.scrollTo(0, 0);", nil); err != nil {
			return models.Unit{}, err
		}
	}
	if req.Type == models.TransferZippedBag {
		base := path.Base(req.Path)
		name, namePrefix = strings.TrimSuffix(base, path.Ext(base)), true
	} else if err := typeInto(ctx, s, h.vocab.MustSelector(vocab.RoleTransferName), name); err != nil {
		return models.Unit{}, err
	}
	if req.Accession != "" {
		if err := typeInto(ctx, s, h.vocab.MustSelector(vocab.RoleTransferAccession), req.Accession); err != nil {
			return models.Unit{}, err
		}
	}

	if err := h.addTransferDirectory(ctx, s, req.Path); err != nil {
		return models.Unit{}, err
	}
	if err := click(ctx, s, h.vocab.MustSelector(vocab.RoleTransferStart)); err != nil {
		return models.Unit{}, err
	}

	unit, err := h.waitForUnit(ctx, s, name, namePrefix)
	if err != nil {
		return models.Unit{}, err
	}
	unit.Type = models.UnitTransfer
	h.logger.Info().
		Str("transfer_uuid", unit.UUID).
		Str("requested_name", req.Name).
		Str("name", unit.Name).
		Str("type", string(req.Type)).
		Msg("Transfer started")

	if err := h.approveTransfer(ctx, s, unit.UUID, req.Type); err != nil {
		return unit, err
	}
	return unit, nil
}

// addTransferDirectory opens the transfer source browser, walks to path
// and adds it to the transfer. The walk is retried from the root up to the
// directory navigation limit.
func (h *Harness) addTransferDirectory(ctx context.Context, s interfaces.Session, dir string) error {
	source := h.vocab.MustSelector(vocab.RoleTransferSourceBrowser)
	browser, err := firstDisplayed(ctx, s, source)
	if err != nil {
		return err
	}
	if browser == nil {
		if err := click(ctx, s, h.vocab.MustSelector(vocab.RoleTransferBrowseButton)); err != nil {
			return err
		}
	}
	h.waiter.Visible(ctx, s, source, 0)

	maxTries := h.config.Timing.DirectoryNavMaxTries
	for attempt := 1; ; attempt++ {
		err := h.clickTransferDirectory(ctx, s, dir)
		if err == nil {
			return nil
		}
		if attempt >= maxTries || ctx.Err() != nil {
			return fmt.Errorf("%w: transfer directory %s after %d attempts: %w", models.ErrNavigationFailed, dir, attempt, err)
		}
		h.logger.Warn().Err(err).Str("path", dir).Int("attempt", attempt).Msg("Transfer directory navigation failed, retrying")
	}
}

// folderLabelXPath matches a tree label whose text is folder followed by
// the "(n)" entry count.
func folderLabelXPath(folder string) string {
	return fmt.Sprintf("div[contains(@class, 'tree-label') and descendant::span["+
		"starts-with(normalize-space(text()), '%[1]s') and "+
		"starts-with(normalize-space(substring-after(normalize-space(text()), '%[1]s')), '(')]]", folder)
}

func (h *Harness) clickTransferDirectory(ctx context.Context, s interfaces.Session, dir string) error {
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	var trail []string
	for i, folder := range parts {
		label := folderLabelXPath(folder)
		if i == 0 {
			label = "//" + label
		}
		trail = append(trail, label)
		labelXPath := strings.Join(trail, treeChildStep)
		labelLoc := interfaces.XPath(labelXPath)

		if !h.waiter.Present(ctx, s, labelLoc, folderTimeout) {
			return fmt.Errorf("folder %q not shown: %w", folder, wait.ErrTimeout)
		}

		if i < len(parts)-1 {
			icon := interfaces.XPath(labelXPath + "/preceding-sibling::i[@class='tree-branch-head']")
			if err := h.clickScrolling(ctx, s, icon); err != nil {
				return err
			}
			children := interfaces.XPath(labelXPath + "/following-sibling::treeitem")
			if !h.waiter.Visible(ctx, s, children, childrenTimeout) {
				return fmt.Errorf("folder %q did not open: %w", folder, wait.ErrTimeout)
			}
			continue
		}

		if err := h.clickScrolling(ctx, s, labelLoc); err != nil {
			return err
		}
		if err := click(ctx, s, h.vocab.MustSelector(vocab.RoleTransferAddDirectory)); err != nil {
			return err
		}
		return s.Execute(ctx, "window.scrollTo(0, 0);", nil)
	}
	return nil
}

// clickScrolling clicks loc once it is displayed, scrolling the transfer
// tree down in steps while it is not. An element still hidden after the
// last step is clicked anyway.
func (h *Harness) clickScrolling(ctx context.Context, s interfaces.Session, loc interfaces.Locator) error {
	container := h.vocab.MustSelector(vocab.RoleTransferTreeContainer)
	for offset := treeScrollStep; offset <= treeScrollMax; offset += treeScrollStep {
		el, err := s.FindElement(ctx, loc)
		if err != nil {
			return err
		}
		displayed, err := el.IsDisplayed(ctx)
		if err != nil {
			return err
		}
		if displayed {
			return el.Click(ctx)
		}
		script := fmt.Sprintf("document.querySelector(%q).scrollTop = %d;", container.Value, offset)
		if err := s.Execute(ctx, script, nil); err != nil {
			return err
		}
	}
	return click(ctx, s, loc)
}

// WaitForUnitToAppear waits for a unit named name to be listed in the
// Transfer or Ingest tab and returns it with the UUID read from the page.
func (h *Harness) WaitForUnitToAppear(ctx context.Context, name string, unitType models.UnitType) (models.Unit, error) {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return models.Unit{}, err
	}
	if err := h.navigate(ctx, s, h.unitURL(unitType), false); err != nil {
		return models.Unit{}, err
	}
	unit, err := h.waitForUnit(ctx, s, name, false)
	if err != nil {
		return models.Unit{}, err
	}
	unit.Type = unitType
	return unit, nil
}

func (h *Harness) unitURL(unitType models.UnitType) string {
	if unitType == models.UnitTransfer {
		return h.TransferURL()
	}
	return h.IngestURL()
}

// waitForUnit scans the unit containers every UnitAppearInterval until one
// is named name (or starts with it when prefix is set), giving up after
// UnitAppearMaxPolls scans with models.ErrUnitNotFound.
func (h *Harness) waitForUnit(ctx context.Context, s interfaces.Session, name string, prefix bool) (models.Unit, error) {
	h.waiter.Present(ctx, s, h.vocab.MustSelector(vocab.RoleUnitName), 0)

	timing := h.config.Timing
	for poll := 1; poll <= timing.UnitAppearMaxPolls; poll++ {
		unit, err := wait.RetryOnStaleValue(ctx, h.logger, "scan units", func(ctx context.Context) (*models.Unit, error) {
			return h.scanUnits(ctx, s, name, prefix)
		}, wait.WithMaxAttempts(timing.StaleRetryLimit))
		if err != nil {
			return models.Unit{}, err
		}
		if unit != nil {
			if unit.Name != name {
				h.logger.Info().Str("requested", name).Str("shown", unit.Name).Msg("Unit was renamed by the dashboard")
			}
			// Let the unit's row finish rendering before it is used.
			if err := wait.Sleep(ctx, timing.UnitAppearInterval.Duration); err != nil {
				return models.Unit{}, err
			}
			return *unit, nil
		}
		if err := wait.Sleep(ctx, timing.UnitAppearInterval.Duration); err != nil {
			return models.Unit{}, fmt.Errorf("waiting for unit %q: %w", name, err)
		}
	}
	return models.Unit{}, fmt.Errorf("%w: %q after %d polls", models.ErrUnitNotFound, name, timing.UnitAppearMaxPolls)
}

// scanUnits returns the first listed unit matching name, or nil. The UUID
// comes from the name's abbr title when the layout shows it, else from
// the UUID column.
func (h *Harness) scanUnits(ctx context.Context, s interfaces.Session, name string, prefix bool) (*models.Unit, error) {
	containers, err := s.FindElements(ctx, h.vocab.MustSelector(vocab.RoleUnitContainer))
	if err != nil {
		return nil, err
	}
	for _, container := range containers {
		nameEl, err := container.FindElement(ctx, h.vocab.MustSelector(vocab.RoleUnitName))
		if errors.Is(err, interfaces.ErrNoSuchElement) {
			continue
		}
		if err != nil {
			return nil, err
		}
		text, err := nameEl.Text(ctx)
		if err != nil {
			return nil, err
		}
		shown := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "UUID"))
		if shown != name && !(prefix && strings.HasPrefix(shown, name)) {
			continue
		}

		uuid, err := h.unitUUID(ctx, container, nameEl)
		if err != nil {
			return nil, err
		}
		if uuid == "" {
			continue
		}
		return &models.Unit{UUID: uuid, Name: shown}, nil
	}
	return nil, nil
}

func (h *Harness) unitUUID(ctx context.Context, container, nameEl interfaces.Element) (string, error) {
	abbrs, err := nameEl.FindElements(ctx, interfaces.CSS("abbr"))
	if err != nil {
		return "", err
	}
	if len(abbrs) > 0 {
		displayed, err := abbrs[0].IsDisplayed(ctx)
		if err != nil {
			return "", err
		}
		if displayed {
			title, err := abbrs[0].Attribute(ctx, "title")
			return strings.TrimSpace(title), err
		}
	}
	uuidEl, err := container.FindElement(ctx, h.vocab.MustSelector(vocab.RoleUnitUUID))
	if errors.Is(err, interfaces.ErrNoSuchElement) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	text, err := uuidEl.Text(ctx)
	return strings.TrimSpace(text), err
}

// ApproveTransfer picks the "Approve transfer" option matching the
// transfer type on the transfer's decision. The option is polled for until
// the decision is offered.
func (h *Harness) ApproveTransfer(ctx context.Context, transferUUID string, transferType models.TransferType) error {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return err
	}
	if err := h.navigate(ctx, s, h.TransferURL(), false); err != nil {
		return err
	}
	return h.approveTransfer(ctx, s, transferUUID, transferType)
}

func (h *Harness) approveTransfer(ctx context.Context, s interfaces.Session, transferUUID string, transferType models.TransferType) error {
	optionID, err := h.vocab.ApproveTransferOption(transferType)
	if err != nil {
		return err
	}
	option := interfaces.CSS(fmt.Sprintf("option[value='%s']", optionID))

	for {
		clicked, err := wait.RetryOnStaleValue(ctx, h.logger, "approve transfer", func(ctx context.Context) (bool, error) {
			container, err := h.locator.UnitContainer(ctx, s, transferUUID)
			if err != nil || container == nil {
				return false, err
			}
			opts, err := container.FindElements(ctx, option)
			if err != nil || len(opts) == 0 {
				return false, err
			}
			return true, opts[0].Click(ctx)
		}, wait.WithMaxAttempts(h.config.Timing.StaleRetryLimit))
		if err != nil {
			return fmt.Errorf("failed to approve transfer %s: %w", transferUUID, err)
		}
		if clicked {
			h.logger.Info().Str("transfer_uuid", transferUUID).Str("type", string(transferType)).Msg("Transfer approved")
			return nil
		}
		h.logger.Debug().Str("transfer_uuid", transferUUID).Str("option", optionID).Msg("Approve option not offered yet")
		if err := wait.Sleep(ctx, h.config.Timing.DecisionRetryInterval.Duration); err != nil {
			return fmt.Errorf("waiting to approve transfer %s: %w", transferUUID, err)
		}
	}
}

// GetSIPUUID returns the UUID of the SIP created from the transfer named
// transferName. It starts over in a fresh session on the Ingest tab.
func (h *Harness) GetSIPUUID(ctx context.Context, transferName string) (string, error) {
	s, err := h.sessions.Renew(ctx)
	if err != nil {
		return "", err
	}
	if err := h.navigate(ctx, s, h.IngestURL(), true); err != nil {
		return "", err
	}
	unit, err := h.waitForUnit(ctx, s, transferName, false)
	if err != nil {
		return "", err
	}
	h.logger.Info().Str("transfer", transferName).Str("sip_uuid", unit.UUID).Msg("Found SIP")
	return unit.UUID, nil
}

// RemoveAllUnits removes every unit listed in the Transfer or Ingest tab,
// top to bottom, confirming each removal dialog. It returns how many were
// removed.
func (h *Harness) RemoveAllUnits(ctx context.Context, unitType models.UnitType) (int, error) {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return 0, err
	}
	if err := h.navigate(ctx, s, h.unitURL(unitType), true); err != nil {
		return 0, err
	}
	containerLoc := h.vocab.MustSelector(vocab.RoleUnitContainer)
	h.waiter.Present(ctx, s, containerLoc, removeTimeout)

	removed := 0
	for {
		containers, err := s.FindElements(ctx, containerLoc)
		if err != nil {
			return removed, err
		}
		if len(containers) == 0 {
			break
		}
		if err := h.removeUnit(ctx, s, containers[0]); err != nil {
			return removed, err
		}
		removed++
	}
	h.logger.Info().Str("tab", string(unitType)).Int("removed", removed).Msg("Removed all units")
	return removed, nil
}

func (h *Harness) removeUnit(ctx context.Context, s interfaces.Session, unit interfaces.Element) error {
	if err := click(ctx, unit, h.vocab.MustSelector(vocab.RoleUnitRemove)); err != nil {
		return fmt.Errorf("failed to remove unit: %w", err)
	}

	dialogLoc := h.vocab.MustSelector(vocab.RoleDialog)
	h.waiter.Present(ctx, s, dialogLoc, 0)
	dialog, err := firstDisplayed(ctx, s, dialogLoc)
	if err != nil {
		return err
	}
	if dialog == nil {
		return fmt.Errorf("failed to remove unit: no confirmation dialog: %w", interfaces.ErrNoSuchElement)
	}
	buttons, err := dialog.FindElements(ctx, interfaces.CSS("button"))
	if err != nil {
		return err
	}
	confirm := h.vocab.Label(vocab.LabelConfirm)
	var confirmButton interfaces.Element
	for _, b := range buttons {
		text, err := b.Text(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == confirm {
			confirmButton = b
			break
		}
	}
	if confirmButton == nil {
		return fmt.Errorf("failed to remove unit: confirm button %q not found: %w", confirm, interfaces.ErrNoSuchElement)
	}
	if err := confirmButton.Click(ctx); err != nil {
		return err
	}
	h.waiter.Absent(ctx, s, dialogLoc, 0)

	// The row fades out before it is detached.
	fadeCtx, cancel := context.WithTimeout(ctx, removeTimeout)
	defer cancel()
	for {
		displayed, err := unit.IsDisplayed(fadeCtx)
		if errors.Is(err, interfaces.ErrStaleElement) || (err == nil && !displayed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := wait.Sleep(fadeCtx, h.waiter.Interval()); err != nil {
			if ctx.Err() == nil {
				return fmt.Errorf("unit still shown %s after removal: %w", removeTimeout, wait.ErrTimeout)
			}
			return fmt.Errorf("waiting for unit removal: %w", err)
		}
	}
}

// AddDummyMetadata opens the SIP's metadata form and fills every
// configured attribute with the configured dummy value.
func (h *Harness) AddDummyMetadata(ctx context.Context, sipUUID string) error {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return err
	}
	if err := h.navigate(ctx, s, h.IngestURL(), false); err != nil {
		return err
	}
	if err := click(ctx, s, interfaces.CSS(fmt.Sprintf("#sip-row-%s a.btn_show_metadata", sipUUID))); err != nil {
		return fmt.Errorf("failed to open metadata of %s: %w", sipUUID, err)
	}
	if err := h.navigate(ctx, s, h.MetadataAddURL(sipUUID), false); err != nil {
		return err
	}
	for _, attr := range h.config.Metadata.Attributes {
		if err := typeInto(ctx, s, interfaces.ID("id_"+attr), h.config.Metadata.DummyValue); err != nil {
			return fmt.Errorf("failed to fill metadata %s: %w", attr, err)
		}
	}
	// The form says Save instead of Create when metadata already exists.
	err = click(ctx, s, interfaces.CSS("input[value=Create]"))
	if errors.Is(err, interfaces.ErrNoSuchElement) {
		err = click(ctx, s, interfaces.CSS("input[value=Save]"))
	}
	return err
}
