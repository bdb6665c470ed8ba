package relay

import (
	"strings"

	"github.com/BaSui01/llmrelay/types"
)

// Profile 是命名的节奏档位
type Profile string

const (
	ProfileSlow   Profile = "slow"
	ProfileMedium Profile = "medium"
	ProfileFast   Profile = "fast"
)

// 默认生成参数
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// GenerationRequest 是三个生成端点共用的请求体
type GenerationRequest struct {
	Model            string         `json:"model"`
	Prompt           string         `json:"prompt"`
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	StreamSpeed      Profile        `json:"stream_speed,omitempty"`
	AdditionalParams map[string]any `json:"additional_params,omitempty"`
}

// Validate 检查必填字段
func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return types.NewInvalidRequestError("model is required")
	}
	if r.Prompt == "" {
		return types.NewInvalidRequestError("prompt is required")
	}
	return nil
}

// Profile 返回请求的节奏档位，缺省为 medium
func (r *GenerationRequest) Profile() Profile {
	if r.StreamSpeed == "" {
		return ProfileMedium
	}
	return r.StreamSpeed
}

// Payload 构造发往后端的 JSON 对象。
// additional_params 最后合并，可覆盖包括 model、prompt 在内的任意字段。
func (r *GenerationRequest) Payload() map[string]any {
	temperature := DefaultTemperature
	if r.Temperature != nil {
		temperature = *r.Temperature
	}
	maxTokens := DefaultMaxTokens
	if r.MaxTokens != nil {
		maxTokens = *r.MaxTokens
	}

	payload := make(map[string]any, 4+len(r.AdditionalParams))
	payload["model"] = r.Model
	payload["prompt"] = r.Prompt
	payload["temperature"] = temperature
	payload["max_tokens"] = maxTokens
	for k, v := range r.AdditionalParams {
		payload[k] = v
	}
	return payload
}
