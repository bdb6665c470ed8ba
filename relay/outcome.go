package relay

import (
	"fmt"
	"time"
)

// Mode 选择输出形态
type Mode int

const (
	// ModePaced 解码、重新分块并按档位节奏输出纯文本
	ModePaced Mode = iota
	// ModePassthrough 原样转发上游 JSON 行，固定间隔
	ModePassthrough
	// ModeSimple 解码后直接输出文本，不分块不等待
	ModeSimple
)

func (m Mode) String() string {
	switch m {
	case ModePaced:
		return "paced"
	case ModePassthrough:
		return "passthrough"
	case ModeSimple:
		return "simple"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ContentType 返回该模式响应的 Content-Type
func (m Mode) ContentType() string {
	if m == ModePassthrough {
		return "application/x-ndjson"
	}
	return "text/plain; charset=utf-8"
}

// State 是单次转发的生命周期状态
// Idle → Connecting → Streaming → {Completed | UpstreamFailed | Cancelled}
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateUpstreamFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateUpstreamFailed:
		return "upstream_failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome 是一次转发的最终结果。DecodeErrors 非致命，与任何终态并存。
type Outcome struct {
	Mode  Mode
	State State
	// StatusCode 是后端的非 2xx 状态码，连接失败时为 0
	StatusCode int
	// Err 是导致 UpstreamFailed 或截断的底层错误
	Err error
	// Truncated 表示已输出部分数据后上游读取出错
	Truncated bool
	// Done 表示后端发送了 done:true；passthrough 模式不解码，始终为 false
	Done         bool
	Units        int
	Bytes        int
	DecodeErrors int
	Duration     time.Duration
}
