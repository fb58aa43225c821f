package harness

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/artifacts"
	"github.com/ternarybob/amsc/internal/services/mets"
	"github.com/ternarybob/amsc/internal/services/storageservice"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/internal/services/wait"
)

const (
	storeAIPDecision = "Store AIP (review)"
	explorerRootID   = "explorer_var_archivematica_sharedDirectory_watchedDirectories"
	newWindowTimeout = 10 * time.Second
	explorerTimeout  = 10 * time.Second
	// Explorer entries animate open on hover.
	hoverDelay = 250 * time.Millisecond
)

// GetMETS opens the METS file of the SIP in the review-AIP file browser and
// returns it parsed. The SIP must be held at the "Store AIP" review
// decision. When sipUUID is empty it is looked up from transferName.
func (h *Harness) GetMETS(ctx context.Context, transferName, sipUUID string) (*mets.Document, error) {
	if sipUUID == "" {
		var err error
		if sipUUID, err = h.GetSIPUUID(ctx, transferName); err != nil {
			return nil, err
		}
	}
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.navigate(ctx, s, h.IngestURL(), false); err != nil {
		return nil, err
	}
	if _, _, err := h.locator.Expose(ctx, s, storeAIPDecision, sipUUID); err != nil {
		return nil, err
	}
	if err := h.navigate(ctx, s, h.PreviewAIPURL(sipUUID), false); err != nil {
		return nil, err
	}

	before, err := s.Windows(ctx)
	if err != nil {
		return nil, err
	}
	metsPath := fmt.Sprintf("storeAIP/%s-%s/METS.%s.xml", transferName, sipUUID, sipUUID)
	if err := h.clickAIPFile(ctx, s, metsPath); err != nil {
		return nil, err
	}
	url, err := h.readNewWindowURL(ctx, s, before)
	if err != nil {
		return nil, fmt.Errorf("METS file of %s did not open: %w", sipUUID, err)
	}

	cookies, err := s.Cookies(ctx)
	if err != nil {
		return nil, err
	}
	client, err := h.ssClient(ctx)
	if err != nil {
		return nil, err
	}
	body, err := client.Fetch(ctx, url, cookies)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch METS of %s: %w", sipUUID, err)
	}
	doc, err := mets.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	h.logger.Info().Str("sip_uuid", sipUUID).Int("bytes", len(body)).Msg("Read METS file")
	return doc, nil
}

// clickAIPFile walks the review-AIP explorer down path and clicks the file
// at its end, retrying the walk up to the directory navigation limit.
func (h *Harness) clickAIPFile(ctx context.Context, s interfaces.Session, path string) error {
	maxTries := h.config.Timing.DirectoryNavMaxTries
	for attempt := 1; ; attempt++ {
		err := h.walkAIPExplorer(ctx, s, path)
		if err == nil {
			return nil
		}
		if attempt >= maxTries || ctx.Err() != nil {
			return fmt.Errorf("AIP file %s after %d attempts: %w", path, attempt, err)
		}
		h.logger.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("AIP explorer navigation failed, retrying")
	}
}

// explorerIDs returns the element id of every entry along path. The
// explorer derives ids from the path below the watched directories, with
// the "METS." file prefix rendered as "METS__".
func explorerIDs(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	last := parts[len(parts)-1]
	if strings.HasPrefix(last, "METS.") {
		parts[len(parts)-1] = "METS__" + strings.TrimPrefix(last, "METS.")
	}
	cwd := []string{explorerRootID}
	ids := make([]string, len(parts))
	for i, part := range parts {
		cwd = append(cwd, part)
		ids[i] = strings.Join(cwd, "_")
	}
	return ids
}

func (h *Harness) walkAIPExplorer(ctx context.Context, s interfaces.Session, path string) error {
	explorer := h.vocab.MustSelector(vocab.RoleAIPExplorer)
	ids := explorerIDs(path)
	for i, id := range ids {
		isFile := i == len(ids)-1
		if !h.waiter.Present(ctx, s, explorer, time.Second) {
			return fmt.Errorf("file explorer not shown: %w", wait.ErrTimeout)
		}
		entryLoc := interfaces.ID(id)
		if !h.waiter.Present(ctx, s, entryLoc, explorerTimeout) {
			return fmt.Errorf("explorer entry %s not shown: %w", id, wait.ErrTimeout)
		}
		entry, err := s.FindElement(ctx, entryLoc)
		if err != nil {
			return err
		}
		if err := entry.Hover(ctx); err != nil {
			return err
		}
		if err := wait.Sleep(ctx, hoverDelay); err != nil {
			return err
		}

		class := "backbone-file-explorer-directory_icon_button"
		if isFile {
			class = "backbone-file-explorer-directory_entry_name"
		}
		escaped := strings.ReplaceAll(id, ".", `\.`)
		button, err := s.FindElement(ctx, interfaces.CSS(fmt.Sprintf("div#%s span.%s", escaped, class)))
		if err != nil {
			return err
		}
		if err := button.Hover(ctx); err != nil {
			return err
		}
		if err := button.Click(ctx); err != nil {
			return err
		}
		if isFile {
			return nil
		}
		contents := interfaces.CSS(fmt.Sprintf("div#%s + div.backbone-file-explorer-level", escaped))
		if !h.waiter.Visible(ctx, s, contents, explorerTimeout) {
			return fmt.Errorf("explorer folder %s did not open: %w", id, wait.ErrTimeout)
		}
	}
	return nil
}

// readNewWindowURL waits for a window that is not in before, reads its URL
// and closes it.
func (h *Harness) readNewWindowURL(ctx context.Context, s interfaces.Session, before []string) (string, error) {
	known := make(map[string]bool, len(before))
	for _, id := range before {
		known[id] = true
	}
	var opened string
	err := h.waiter.Until(ctx, newWindowTimeout, func(ctx context.Context) (bool, error) {
		windows, err := s.Windows(ctx)
		if err != nil {
			return false, err
		}
		for _, id := range windows {
			if !known[id] {
				opened = id
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}

	win, err := s.SwitchTo(ctx, opened)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := win.Close(); err != nil {
			h.logger.Debug().Str("window", opened).Err(err).Msg("Failed to close window")
		}
	}()
	return win.CurrentURL(ctx)
}

// ValidatePIDs checks the persistent identifiers of every entity of doc.
// URI identifiers are resolved unless the harness was built with a nil
// resolver.
func (h *Harness) ValidatePIDs(ctx context.Context, doc *mets.Document, accessionNo string) error {
	return mets.ValidatePIDs(ctx, doc, accessionNo, h.resolver)
}

// ssClient returns the Storage Service REST client, built on first use
// once the API key is known.
func (h *Harness) ssClient(ctx context.Context) (*storageservice.Client, error) {
	h.mu.Lock()
	client := h.ss
	h.mu.Unlock()
	if client != nil {
		return client, nil
	}

	apiKey, err := h.SSAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	timing := h.config.Timing
	policy := storageservice.NewRetryPolicy()
	policy.MaxAttempts = timing.DownloadMaxAttempts
	policy.Interval = timing.DownloadRetryInterval.Duration
	client = storageservice.NewClient(h.config.StorageService.URL, h.config.StorageService.Username, apiKey,
		storageservice.WithHTTPClient(h.httpClient),
		storageservice.WithRateLimit(timing.HTTPRateLimit),
		storageservice.WithRetryPolicy(policy),
		storageservice.WithLogger(h.logger),
	)

	h.mu.Lock()
	h.ss = client
	h.mu.Unlock()
	return client, nil
}

// DownloadAIP downloads the stored AIP into the scratch directory as
// "<transferName>-<aipUUID>.7z" and returns its path.
func (h *Harness) DownloadAIP(ctx context.Context, transferName, aipUUID string) (string, error) {
	client, err := h.ssClient(ctx)
	if err != nil {
		return "", err
	}
	dir, err := h.TmpDir()
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, fmt.Sprintf("%s-%s.7z", transferName, aipUUID))
	if err := client.DownloadAIP(ctx, aipUUID, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// DownloadPointerFile downloads the AIP's pointer file into the scratch
// directory as "pointer.<aipUUID>.xml" and returns its path.
func (h *Harness) DownloadPointerFile(ctx context.Context, aipUUID string) (string, error) {
	client, err := h.ssClient(ctx)
	if err != nil {
		return "", err
	}
	dir, err := h.TmpDir()
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, fmt.Sprintf("pointer.%s.xml", aipUUID))
	if err := client.DownloadPointerFile(ctx, aipUUID, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// DecompressAIP extracts a downloaded AIP next to it and returns the
// extracted directory. False means 7z failed; the failure is logged.
func (h *Harness) DecompressAIP(ctx context.Context, archivePath string) (string, bool) {
	return h.archiver.DecompressAIP(ctx, archivePath)
}

// DecompressPackage extracts a transfer or DIP package into the scratch
// directory.
func (h *Harness) DecompressPackage(ctx context.Context, packagePath string) (string, bool) {
	return h.archiver.DecompressPackage(ctx, packagePath)
}

// CopyFromServer copies a file from the dashboard host into the scratch
// directory over scp.
func (h *Harness) CopyFromServer(ctx context.Context, remotePath string) (string, bool) {
	return h.copier.CopyFromServer(ctx, remotePath)
}

// CopyDirFromServer copies a directory from the dashboard host.
func (h *Harness) CopyDirFromServer(ctx context.Context, remotePath string) (string, bool) {
	return h.copier.CopyDirFromServer(ctx, remotePath)
}

// CaptureFailure saves a screenshot and the page of the current session
// under name in the artifacts directory.
func (h *Harness) CaptureFailure(ctx context.Context, name string) (artifacts.Capture, error) {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return artifacts.Capture{}, err
	}
	return h.recorder.Capture(ctx, s, name)
}
