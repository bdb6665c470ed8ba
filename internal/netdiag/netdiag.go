package netdiag

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/llmrelay/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnresolved 解析失败时返回给调用方的固定文案
const ErrUnresolved = "Could not resolve hostname"

const maxParallelProbes = 8

// HostResult 单个主机的解析结果
type HostResult struct {
	Resolved  bool   `json:"resolved"`
	IPAddress string `json:"ip_address,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report 一次完整的网络诊断结果
type Report struct {
	DNSChecks map[string]HostResult `json:"dns_checks"`
	SystemDNS []string              `json:"system_dns"`
	System    string                `json:"system"`
}

// Resolver 主机名解析接口，*net.Resolver 满足此接口
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// CommandRunner 执行外部命令并返回标准输出
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Prober 网络诊断器
type Prober struct {
	resolver   Resolver
	hosts      []string
	timeout    time.Duration
	resolvConf string
	goos       string
	run        CommandRunner
	logger     *zap.Logger
}

// Option 诊断器选项
type Option func(*Prober)

// WithResolver 替换解析器
func WithResolver(r Resolver) Option {
	return func(p *Prober) { p.resolver = r }
}

// WithGOOS 指定平台，默认 runtime.GOOS
func WithGOOS(goos string) Option {
	return func(p *Prober) { p.goos = goos }
}

// WithCommandRunner 替换外部命令执行器
func WithCommandRunner(run CommandRunner) Option {
	return func(p *Prober) { p.run = run }
}

// NewProber 创建诊断器
func NewProber(cfg config.DNSConfig, logger *zap.Logger, opts ...Option) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	p := &Prober{
		resolver:   net.DefaultResolver,
		hosts:      append([]string(nil), cfg.Hosts...),
		timeout:    timeout,
		resolvConf: cfg.ResolvConf,
		goos:       runtime.GOOS,
		run:        runCommand,
		logger:     logger.With(zap.String("component", "netdiag")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check 并发解析全部主机并收集系统 DNS 配置
func (p *Prober) Check(ctx context.Context) Report {
	return Report{
		DNSChecks: p.ResolveHosts(ctx),
		SystemDNS: p.SystemDNS(ctx),
		System:    PlatformName(p.goos),
	}
}

// ResolveHosts 并发解析配置中的主机，每个主机单独超时
func (p *Prober) ResolveHosts(ctx context.Context) map[string]HostResult {
	results := make(map[string]HostResult, len(p.hosts))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(maxParallelProbes)

	for _, host := range p.hosts {
		g.Go(func() error {
			res := p.resolve(ctx, host)
			mu.Lock()
			results[host] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Prober) resolve(ctx context.Context, host string) HostResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addrs, err := p.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		p.logger.Debug("dns probe failed", zap.String("host", host), zap.Error(err))
		return HostResult{Resolved: false, Error: ErrUnresolved}
	}

	return HostResult{Resolved: true, IPAddress: preferIPv4(addrs).String()}
}

// preferIPv4 返回第一个 IPv4 地址，没有则返回第一个地址
func preferIPv4(addrs []net.IPAddr) net.IP {
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4
		}
	}
	return addrs[0].IP
}

// SystemDNS 读取系统配置的 DNS 服务器，失败时返回空列表
func (p *Prober) SystemDNS(ctx context.Context) []string {
	if p.goos == "windows" {
		out, err := p.run(ctx, "ipconfig", "/all")
		if err != nil {
			p.logger.Warn("failed to run ipconfig", zap.Error(err))
			return []string{}
		}
		return ParseIPConfig(out)
	}

	path := p.resolvConf
	if path == "" {
		path = "/etc/resolv.conf"
	}
	f, err := os.Open(path)
	if err != nil {
		p.logger.Debug("resolv.conf unavailable", zap.String("path", path), zap.Error(err))
		return []string{}
	}
	defer f.Close()

	return ParseResolvConf(f)
}

// ParseResolvConf 提取 nameserver 行
func ParseResolvConf(r io.Reader) []string {
	servers := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "nameserver" {
			servers = append(servers, fields[1])
		}
	}
	return servers
}

// ParseIPConfig 从 `ipconfig /all` 输出中提取 "DNS Servers" 及其续行
func ParseIPConfig(out []byte) []string {
	servers := []string{}
	inDNS := false

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()

		if strings.Contains(line, "DNS Servers") {
			_, value, _ := strings.Cut(line, ":")
			if value = strings.TrimSpace(value); value != "" {
				servers = append(servers, value)
			}
			inDNS = true
			continue
		}

		if inDNS && isAddress(strings.TrimSpace(line)) {
			servers = append(servers, strings.TrimSpace(line))
			continue
		}
		inDNS = false
	}
	return servers
}

// isAddress 判断续行是否为 IP 地址（允许 IPv6 zone 后缀）
func isAddress(value string) bool {
	host, _, _ := strings.Cut(value, "%")
	return host != "" && net.ParseIP(host) != nil
}

// PlatformName 返回平台显示名
func PlatformName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	case "":
		return ""
	default:
		return strings.ToUpper(goos[:1]) + goos[1:]
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
