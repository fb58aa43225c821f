package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
)

type call struct {
	dir  string
	name string
	args []string
}

// fakeRunner records calls and answers each with the matching scripted
// function keyed by "<name> <first arg>".
type fakeRunner struct {
	calls   []call
	scripts map[string]func(c call) ([]byte, error)
	missing bool
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	c := call{dir: dir, name: name, args: args}
	f.calls = append(f.calls, c)
	key := name
	if len(args) > 0 {
		key += " " + args[0]
	}
	if fn, ok := f.scripts[key]; ok {
		return fn(c)
	}
	return nil, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/bin/" + name, nil
}

const listing = `
7-Zip [64] 16.02 : Copyright (c) 1999-2016 Igor Pavlov : 2016-05-21

   Date      Time    Attr         Size   Compressed  Name
------------------- ----- ------------ ------------  ------------------------
2024-02-01 10:00:00 D....            0            0  demo-5c1e2f0a/data
2024-02-01 10:00:00 ....A         1024          512  demo-5c1e2f0a/data/METS.xml
2024-02-01 10:00:00 D....            0            0  demo-5c1e2f0a
------------------- ----- ------------ ------------  ------------------------
2024-02-01 10:00:00               1024          512  1 files, 2 folders
`

func TestTopDirectory(t *testing.T) {
	name, ok := TopDirectory(listing)
	assert.True(t, ok)
	assert.Equal(t, "demo-5c1e2f0a", name)

	_, ok = TopDirectory("one line")
	assert.False(t, ok)
}

func TestDecompressAIP(t *testing.T) {
	logger := arbor.NewLogger()

	t.Run("extracts into scratch dir", func(t *testing.T) {
		tmp := t.TempDir()
		runner := &fakeRunner{scripts: map[string]func(call) ([]byte, error){
			"7z l": func(call) ([]byte, error) { return []byte(listing), nil },
			"7z x": func(c call) ([]byte, error) {
				return nil, os.MkdirAll(filepath.Join(c.dir, "demo-5c1e2f0a", "data"), 0755)
			},
		}}

		dir, ok := NewArchiver(runner, tmp, logger).DecompressAIP(context.Background(), "/tmp/demo.7z")
		require.True(t, ok)
		assert.Equal(t, filepath.Join(tmp, "demo-5c1e2f0a"), dir)
		require.Len(t, runner.calls, 2)
		assert.Equal(t, []string{"x", "/tmp/demo.7z", "-aoa"}, runner.calls[1].args)
		assert.Equal(t, tmp, runner.calls[1].dir)
	})

	t.Run("relative scratch dir", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cwd, err := os.Getwd()
		require.NoError(t, err)
		runner := &fakeRunner{scripts: map[string]func(call) ([]byte, error){
			"7z l": func(call) ([]byte, error) { return []byte(listing), nil },
			"7z x": func(c call) ([]byte, error) {
				return nil, os.MkdirAll(filepath.Join(c.dir, "demo-5c1e2f0a"), 0755)
			},
		}}

		dir, ok := NewArchiver(runner, ".amsc-tmp", logger).DecompressAIP(context.Background(), filepath.Join(".amsc-tmp", "demo.7z"))
		require.True(t, ok)
		scratch := filepath.Join(cwd, ".amsc-tmp")
		assert.Equal(t, filepath.Join(scratch, "demo-5c1e2f0a"), dir)
		for _, c := range runner.calls {
			assert.Equal(t, scratch, c.dir)
			assert.Equal(t, filepath.Join(scratch, "demo.7z"), c.args[1])
		}
	})

	t.Run("extraction failure", func(t *testing.T) {
		runner := &fakeRunner{scripts: map[string]func(call) ([]byte, error){
			"7z l": func(call) ([]byte, error) { return []byte(listing), nil },
			"7z x": func(call) ([]byte, error) { return []byte("ERROR"), errors.New("exit status 2") },
		}}
		_, ok := NewArchiver(runner, t.TempDir(), logger).DecompressAIP(context.Background(), "/tmp/demo.7z")
		assert.False(t, ok)
	})

	t.Run("directory missing after extraction", func(t *testing.T) {
		runner := &fakeRunner{scripts: map[string]func(call) ([]byte, error){
			"7z l": func(call) ([]byte, error) { return []byte(listing), nil },
		}}
		_, ok := NewArchiver(runner, t.TempDir(), logger).DecompressAIP(context.Background(), "/tmp/demo.7z")
		assert.False(t, ok)
	})
}

func TestDecompressPackage(t *testing.T) {
	logger := arbor.NewLogger()
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		missing bool
		want    string
		wantOK  bool
	}{
		{"directory passthrough", dir, false, dir, true},
		{"7z", "/pkgs/demo.7z", false, "/pkgs/demo", true},
		{"encrypted 7z", "/pkgs/demo.7z.gpg", false, "/pkgs/demo", true},
		{"tar rejected", "/pkgs/demo.tar.gz", false, "", false},
		{"7z not installed", "/pkgs/demo.7z", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{missing: tt.missing}
			got, ok := NewArchiver(runner, "/scratch", logger).DecompressPackage(context.Background(), tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCopier_Command(t *testing.T) {
	server := common.ServerConfig{User: "vagrant", Password: "vagrant", SSHAccessible: true}

	c := NewCopier(nil, server, "http://192.168.168.192/", "/scratch", arbor.NewLogger())
	name, args := c.Command("/var/log/am.log", "/scratch/am.log", false)
	assert.Equal(t, "scp", name)
	assert.Equal(t, "vagrant@192.168.168.192:/var/log/am.log", args[len(args)-2])
	assert.NotContains(t, args, "-r")

	server.SSHRequiresPassword = true
	server.SSHIdentityFile = "/keys/id"
	c = NewCopier(nil, server, "http://192.168.168.192/", "/scratch", arbor.NewLogger())
	name, args = c.Command("/var/dir", "/scratch/dir", true)
	assert.Equal(t, "sshpass", name)
	assert.Equal(t, []string{"-p", "vagrant", "scp"}, args[:3])
	assert.Contains(t, strings.Join(args, " "), "-i /keys/id -r")
}

func TestCopier_CopyFromServer(t *testing.T) {
	logger := arbor.NewLogger()
	server := common.ServerConfig{User: "vagrant", SSHAccessible: true}

	t.Run("copied", func(t *testing.T) {
		tmp := t.TempDir()
		runner := &fakeRunner{scripts: map[string]func(call) ([]byte, error){
			"scp -o": func(c call) ([]byte, error) {
				return nil, os.WriteFile(c.args[len(c.args)-1], []byte("log"), 0644)
			},
		}}
		got, ok := NewCopier(runner, server, "http://am.local/", tmp, logger).CopyFromServer(context.Background(), "/var/log/am.log")
		require.True(t, ok)
		assert.Equal(t, filepath.Join(tmp, "am.log"), got)
	})

	t.Run("scp fails", func(t *testing.T) {
		runner := &fakeRunner{scripts: map[string]func(call) ([]byte, error){
			"scp -o": func(call) ([]byte, error) { return []byte("Permission denied"), errors.New("exit status 1") },
		}}
		_, ok := NewCopier(runner, server, "http://am.local/", t.TempDir(), logger).CopyFromServer(context.Background(), "/var/log/am.log")
		assert.False(t, ok)
	})

	t.Run("no ssh access", func(t *testing.T) {
		runner := &fakeRunner{}
		noSSH := server
		noSSH.SSHAccessible = false
		_, ok := NewCopier(runner, noSSH, "http://am.local/", t.TempDir(), logger).CopyFromServer(context.Background(), "/var/log/am.log")
		assert.False(t, ok)
		assert.Empty(t, runner.calls)
	})

	t.Run("directory", func(t *testing.T) {
		tmp := t.TempDir()
		runner := &fakeRunner{scripts: map[string]func(call) ([]byte, error){
			"scp -o": func(c call) ([]byte, error) {
				return nil, os.MkdirAll(c.args[len(c.args)-1], 0755)
			},
		}}
		got, ok := NewCopier(runner, server, "http://am.local/", tmp, logger).CopyDirFromServer(context.Background(), "/var/aips/demo/")
		require.True(t, ok)
		assert.Equal(t, filepath.Join(tmp, "demo"), got)
	})
}
