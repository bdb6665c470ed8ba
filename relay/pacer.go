package relay

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 在相邻输出单元之间保持固定间隔。
// 第一个单元立即放行；之后每个单元距上一个至少 delay。
type Pacer struct {
	delay   time.Duration
	limiter *rate.Limiter
}

// NewPacer 创建间隔为 delay 的节奏器，delay <= 0 时不等待
func NewPacer(delay time.Duration) *Pacer {
	p := &Pacer{delay: delay}
	if delay > 0 {
		p.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return p
}

// Delay 返回配置的间隔
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Wait 阻塞到下一个单元可以发出，ctx 取消时立即返回错误
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// Profiles 把节奏档位映射为间隔，未知档位按 medium 处理
type Profiles struct {
	Slow   time.Duration
	Medium time.Duration
	Fast   time.Duration
}

// DefaultProfiles 返回 50ms / 20ms / 10ms
func DefaultProfiles() Profiles {
	return Profiles{
		Slow:   50 * time.Millisecond,
		Medium: 20 * time.Millisecond,
		Fast:   10 * time.Millisecond,
	}
}

// Delay 返回档位对应的间隔
func (p Profiles) Delay(profile Profile) time.Duration {
	switch profile {
	case ProfileSlow:
		return p.Slow
	case ProfileFast:
		return p.Fast
	default:
		return p.Medium
	}
}
