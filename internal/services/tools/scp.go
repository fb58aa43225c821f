package tools

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
)

// Copier copies files and directories from the dashboard host with scp.
type Copier struct {
	runner Runner
	server common.ServerConfig
	host   string
	tmpDir string
	logger arbor.ILogger
}

// NewCopier creates a Copier for the host serving dashboardURL.
func NewCopier(runner Runner, server common.ServerConfig, dashboardURL, tmpDir string, logger arbor.ILogger) *Copier {
	if runner == nil {
		runner = ExecRunner{}
	}
	host := dashboardURL
	if u, err := url.Parse(dashboardURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return &Copier{runner: runner, server: server, host: host, tmpDir: absPath(tmpDir), logger: logger}
}

// Command returns the program and arguments that copy remotePath to
// localPath.
func (c *Copier) Command(remotePath, localPath string, recursive bool) (string, []string) {
	args := []string{"-o", "UserKnownHostsFile=/dev/null", "-o", "StrictHostKeyChecking=no"}
	if c.server.SSHIdentityFile != "" {
		args = append(args, "-i", c.server.SSHIdentityFile)
	}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, c.server.User+"@"+c.host+":"+remotePath, localPath)

	if c.server.SSHRequiresPassword {
		return "sshpass", append([]string{"-p", c.server.Password, "scp"}, args...)
	}
	return "scp", args
}

// CopyFromServer copies the file at remotePath into the scratch directory and
// returns the local path.
func (c *Copier) CopyFromServer(ctx context.Context, remotePath string) (string, bool) {
	return c.copy(ctx, remotePath, false)
}

// CopyDirFromServer copies the directory at remotePath into the scratch
// directory and returns the local path.
func (c *Copier) CopyDirFromServer(ctx context.Context, remotePath string) (string, bool) {
	return c.copy(ctx, strings.TrimRight(remotePath, "/"), true)
}

func (c *Copier) copy(ctx context.Context, remotePath string, recursive bool) (string, bool) {
	if !c.server.SSHAccessible || c.server.User == "" {
		c.logger.Warn().Str("remote", remotePath).Msg("No SSH access to the dashboard host")
		return "", false
	}

	localPath := filepath.Join(c.tmpDir, path.Base(remotePath))
	name, args := c.Command(remotePath, localPath, recursive)
	if out, err := c.runner.Run(ctx, "", name, args...); err != nil {
		c.logger.Warn().
			Err(err).
			Str("host", c.host).
			Str("remote", remotePath).
			Str("output", strings.TrimSpace(string(out))).
			Msg("Failed to copy from server")
		return "", false
	}

	info, err := os.Stat(localPath)
	if err != nil || info.IsDir() != recursive {
		c.logger.Warn().Str("host", c.host).Str("remote", remotePath).Str("local", localPath).Msg("Copy produced no local file")
		return "", false
	}
	return localPath, true
}
