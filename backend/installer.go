package backend

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/llmrelay/types"
	"go.uber.org/zap"
)

// 安装失败时返回给前端的提示
const (
	msgBackendNotResponding = "Ollama service is not responding. Make sure it's running."
	msgBackendUnreachable   = "Cannot connect to Ollama service. Please ensure it's running."
	msgDNSFailure           = "Network error: DNS resolution failed. Check your internet connection and DNS settings."
)

// Pinger 探测后端是否在线
type Pinger interface {
	Ping(ctx context.Context) error
}

// InstallRecorder 记录安装结果，metrics.Collector 实现了它
type InstallRecorder interface {
	RecordInstall(result string)
}

// Installer 通过 `<command> pull <model>` 在后台拉取模型
type Installer struct {
	pinger        Pinger
	command       string
	healthTimeout time.Duration
	grace         time.Duration
	recorder      InstallRecorder
	logger        *zap.Logger

	wg sync.WaitGroup
}

// InstallerConfig 配置 Installer
type InstallerConfig struct {
	Command       string
	HealthTimeout time.Duration
	Grace         time.Duration
}

// NewInstaller 创建模型安装器，recorder 可为 nil
func NewInstaller(pinger Pinger, cfg InstallerConfig, recorder InstallRecorder, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Command == "" {
		cfg.Command = "ollama"
	}
	return &Installer{
		pinger:        pinger,
		command:       cfg.Command,
		healthTimeout: cfg.HealthTimeout,
		grace:         cfg.Grace,
		recorder:      recorder,
		logger:        logger.With(zap.String("component", "installer")),
	}
}

type exitResult struct {
	err    error
	stderr string
}

// Install 检查后端在线后启动拉取进程，并观察 grace 时长。
// 进程在观察期内以非零状态退出时返回错误；否则下载在后台继续。
func (i *Installer) Install(ctx context.Context, model string) error {
	if err := i.checkBackend(ctx); err != nil {
		i.record("backend_down")
		return err
	}

	// 拉取进程不绑定请求 ctx，请求结束后仍继续下载
	cmd := exec.Command(i.command, "pull", model)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		i.record("start_failed")
		return types.NewError(types.ErrInstallFailed, err.Error()).WithHTTPStatus(http.StatusInternalServerError).WithCause(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		i.record("start_failed")
		return types.NewError(types.ErrInstallFailed, err.Error()).WithHTTPStatus(http.StatusInternalServerError).WithCause(err)
	}
	if err := cmd.Start(); err != nil {
		i.record("start_failed")
		i.logger.Error("failed to start pull", zap.String("model", model), zap.Error(err))
		return types.NewError(types.ErrInstallFailed, err.Error()).WithHTTPStatus(http.StatusInternalServerError).WithCause(err)
	}

	log := i.logger.With(zap.String("model", model), zap.Int("pid", cmd.Process.Pid))
	exited := make(chan exitResult, 1)
	var stderrBuf strings.Builder

	var pipes sync.WaitGroup
	pipes.Add(2)
	i.wg.Add(1)
	go func() {
		defer pipes.Done()
		forEachLine(stdout, func(line string) {
			log.Info("pull output", zap.String("line", line))
		})
	}()
	go func() {
		defer pipes.Done()
		forEachLine(stderr, func(line string) {
			if stderrBuf.Len() < 8192 {
				stderrBuf.WriteString(line)
				stderrBuf.WriteByte('\n')
			}
			lower := strings.ToLower(line)
			if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
				log.Error("pull error", zap.String("line", line))
			} else {
				log.Info("pull progress", zap.String("line", line))
			}
		})
	}()
	go func() {
		defer i.wg.Done()
		pipes.Wait()
		err := cmd.Wait()
		if err != nil {
			log.Warn("pull exited", zap.Error(err))
		} else {
			log.Info("pull finished")
		}
		exited <- exitResult{err: err, stderr: strings.TrimSpace(stderrBuf.String())}
	}()

	timer := time.NewTimer(i.grace)
	defer timer.Stop()

	select {
	case res := <-exited:
		if res.err != nil {
			return i.failure(log, res)
		}
	case <-timer.C:
	case <-ctx.Done():
	}

	i.record("started")
	log.Info("model installation started")
	return nil
}

// Wait 等待所有后台拉取进程退出，用于测试和关闭流程
func (i *Installer) Wait() {
	i.wg.Wait()
}

func (i *Installer) checkBackend(ctx context.Context) error {
	if i.pinger == nil {
		return nil
	}
	if i.healthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.healthTimeout)
		defer cancel()
	}
	err := i.pinger.Ping(ctx)
	if err == nil {
		return nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		i.logger.Error("backend appears to be down", zap.Int("status", se.StatusCode))
		return types.NewServiceUnavailableError(msgBackendNotResponding).WithCause(err)
	}
	i.logger.Error("backend connection error", zap.Error(err))
	return types.NewServiceUnavailableError(msgBackendUnreachable).WithCause(err)
}

func (i *Installer) failure(log *zap.Logger, res exitResult) error {
	log.Error("model installation failed", zap.String("stderr", res.stderr))
	lower := strings.ToLower(res.stderr)
	if strings.Contains(lower, "no such host") || strings.Contains(lower, "lookup") {
		i.record("dns_error")
		return types.NewError(types.ErrDNSError, msgDNSFailure).
			WithHTTPStatus(http.StatusInternalServerError).
			WithCause(res.err)
	}
	i.record("failed")
	return types.NewError(types.ErrInstallFailed, "Model installation failed: "+res.stderr).
		WithHTTPStatus(http.StatusInternalServerError).
		WithCause(res.err)
}

func (i *Installer) record(result string) {
	if i.recorder != nil {
		i.recorder.RecordInstall(result)
	}
}

func forEachLine(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fn(line)
		}
	}
}
