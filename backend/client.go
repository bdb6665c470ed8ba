package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/llmrelay/config"
	"github.com/BaSui01/llmrelay/internal/tlsutil"
	"go.uber.org/zap"
)

// TagsResponse 是后端 /api/tags 的响应
type TagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelInfo 是已安装模型的一项
type ModelInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// StatusError 表示后端返回了非 200 状态
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d", e.StatusCode)
}

// Client 查询后端的模型清单
type Client struct {
	http     *http.Client
	baseURL  string
	tagsPath string
	logger   *zap.Logger
}

// NewClient 创建后端客户端
func NewClient(httpClient *http.Client, baseURL, tagsPath string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(baseURL, "/"),
		tagsPath: tagsPath,
		logger:   logger.With(zap.String("component", "backend")),
	}
}

// NewClientFromConfig 按配置创建客户端
func NewClientFromConfig(cfg config.BackendConfig, logger *zap.Logger) *Client {
	return NewClient(tlsutil.SecureHTTPClient(cfg.RequestTimeout), cfg.BaseURL, cfg.TagsPath, logger)
}

// GenerateURL 返回生成接口的完整地址
func GenerateURL(cfg config.BackendConfig) string {
	return strings.TrimRight(cfg.BaseURL, "/") + cfg.GeneratePath
}

// Tags 返回后端已安装的模型
func (c *Client) Tags(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tags TagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags.Models, nil
}

// Installed 返回已安装模型名集合
func (c *Client) Installed(ctx context.Context) (map[string]bool, error) {
	models, err := c.Tags(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(models))
	for _, m := range models {
		set[m.Name] = true
	}
	return set, nil
}

// HasModel 判断模型是否已安装（按名称精确匹配）
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	set, err := c.Installed(ctx)
	if err != nil {
		return false, err
	}
	return set[name], nil
}

// Ping 检查后端是否在线，非 200 返回 *StatusError
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.tagsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("backend unreachable", zap.Error(err))
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}
