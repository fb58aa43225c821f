package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
)

// Archiver extracts 7z packages into a scratch directory.
type Archiver struct {
	runner Runner
	tmpDir string
	logger arbor.ILogger
}

// NewArchiver creates an Archiver extracting into tmpDir.
func NewArchiver(runner Runner, tmpDir string, logger arbor.ILogger) *Archiver {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Archiver{runner: runner, tmpDir: absPath(tmpDir), logger: logger}
}

// absPath resolves p against the working directory. 7z runs inside the
// scratch directory, so relative paths would resolve twice.
func absPath(p string) string {
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// TopDirectory returns the name of the top-level directory of a 7z archive:
// the last field of the third-from-last line of `7z l` output.
func TopDirectory(listing string) (string, bool) {
	lines := strings.Split(strings.TrimRight(listing, "\n"), "\n")
	if len(lines) < 3 {
		return "", false
	}
	fields := strings.Fields(lines[len(lines)-3])
	if len(fields) == 0 {
		return "", false
	}
	return fields[len(fields)-1], true
}

// DecompressAIP extracts the 7z AIP at archivePath into the scratch
// directory, overwriting earlier extractions, and returns the path of the
// extracted AIP directory.
func (a *Archiver) DecompressAIP(ctx context.Context, archivePath string) (string, bool) {
	archivePath = absPath(archivePath)
	listing, err := a.runner.Run(ctx, a.tmpDir, "7z", "l", archivePath)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", archivePath).Msg("Failed to list AIP archive")
		return "", false
	}
	name, ok := TopDirectory(string(listing))
	if !ok {
		a.logger.Warn().Str("path", archivePath).Msg("Unable to read AIP directory name from archive listing")
		return "", false
	}

	if out, err := a.runner.Run(ctx, a.tmpDir, "7z", "x", archivePath, "-aoa"); err != nil {
		a.logger.Warn().Err(err).Str("path", archivePath).Str("output", string(out)).Msg("Failed to extract AIP")
		return "", false
	}

	dir := filepath.Join(a.tmpDir, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		a.logger.Warn().Str("path", archivePath).Str("dir", dir).Msg("Extraction did not create the AIP directory")
		return "", false
	}
	return dir, true
}

// DecompressPackage extracts a .7z or .7z.gpg package into the scratch
// directory and returns the package path without its extensions. A directory
// is returned unchanged.
func (a *Archiver) DecompressPackage(ctx context.Context, packagePath string) (string, bool) {
	if info, err := os.Stat(packagePath); err == nil && info.IsDir() {
		return packagePath, true
	}

	base := strings.TrimSuffix(packagePath, ".gpg")
	if filepath.Ext(base) != ".7z" {
		a.logger.Warn().Str("path", packagePath).Msg("Package is not a 7z archive")
		return "", false
	}
	if _, err := a.runner.LookPath("7z"); err != nil {
		a.logger.Warn().Msg("7z is not installed; skipping decompression")
		return "", false
	}
	if out, err := a.runner.Run(ctx, "", "7z", "x", packagePath, "-o"+a.tmpDir); err != nil {
		a.logger.Warn().
			Err(err).
			Str("path", packagePath).
			Str("output", string(out)).
			Msg("7z extraction failed; the file is not a 7z archive or it is encrypted")
		return "", false
	}
	return strings.TrimSuffix(base, ".7z"), true
}
