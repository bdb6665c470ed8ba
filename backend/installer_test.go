package backend

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/BaSui01/llmrelay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type recorded struct{ results []string }

func (r *recorded) RecordInstall(result string) { r.results = append(r.results, result) }

// writeScript 写一个假的 pull 命令
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-ollama")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestInstaller(command string, pinger Pinger, rec InstallRecorder) *Installer {
	return NewInstaller(pinger, InstallerConfig{
		Command:       command,
		HealthTimeout: time.Second,
		Grace:         100 * time.Millisecond,
	}, rec, zap.NewNop())
}

func TestInstaller_BackendNotResponding(t *testing.T) {
	rec := &recorded{}
	inst := newTestInstaller("unused", stubPinger{err: &StatusError{StatusCode: 500}}, rec)

	err := inst.Install(context.Background(), "gemma:2b")
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, e.HTTPStatus)
	assert.Equal(t, msgBackendNotResponding, e.Message)
	assert.Equal(t, []string{"backend_down"}, rec.results)
}

func TestInstaller_BackendUnreachable(t *testing.T) {
	inst := newTestInstaller("unused", stubPinger{err: errors.New("connection refused")}, nil)

	err := inst.Install(context.Background(), "gemma:2b")
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, e.HTTPStatus)
	assert.Equal(t, msgBackendUnreachable, e.Message)
}

func TestInstaller_StartedInBackground(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "pulled")
	script := writeScript(t, `echo "pulling manifest for $2"; sleep 0.3; echo "$1 $2" > `+marker)
	rec := &recorded{}
	inst := newTestInstaller(script, stubPinger{}, rec)

	start := time.Now()
	require.NoError(t, inst.Install(context.Background(), "gemma:2b"))
	assert.Less(t, time.Since(start), 300*time.Millisecond, "returns after the grace period")
	assert.Equal(t, []string{"started"}, rec.results)

	inst.Wait()
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "pull gemma:2b\n", string(data))
}

func TestInstaller_QuickSuccess(t *testing.T) {
	script := writeScript(t, `exit 0`)
	inst := newTestInstaller(script, stubPinger{}, nil)

	assert.NoError(t, inst.Install(context.Background(), "phi:mini"))
	inst.Wait()
}

func TestInstaller_DNSFailure(t *testing.T) {
	script := writeScript(t, `echo "Error: pull model manifest: dial tcp: lookup registry.ollama.ai: no such host" >&2; exit 1`)
	rec := &recorded{}
	inst := newTestInstaller(script, stubPinger{}, rec)

	err := inst.Install(context.Background(), "gemma:2b")
	inst.Wait()

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrDNSError, e.Code)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus)
	assert.Equal(t, msgDNSFailure, e.Message)
	assert.Equal(t, []string{"dns_error"}, rec.results)
}

func TestInstaller_ImmediateFailure(t *testing.T) {
	script := writeScript(t, `echo "Error: pull model manifest: file does not exist" >&2; exit 1`)
	inst := newTestInstaller(script, stubPinger{}, nil)

	err := inst.Install(context.Background(), "nope:1b")
	inst.Wait()

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrInstallFailed, e.Code)
	assert.Equal(t, "Model installation failed: Error: pull model manifest: file does not exist", e.Message)
}

func TestInstaller_MissingCommand(t *testing.T) {
	rec := &recorded{}
	inst := newTestInstaller(filepath.Join(t.TempDir(), "does-not-exist"), stubPinger{}, rec)

	err := inst.Install(context.Background(), "gemma:2b")
	assert.True(t, types.IsErrorCode(err, types.ErrInstallFailed))
	assert.Equal(t, []string{"start_failed"}, rec.results)
}
