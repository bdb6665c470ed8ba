package relay

import (
	"strings"
	"unicode"
)

// holdFactor 限制末尾未结束段的保留长度：达到 holdFactor*size 个字符后即使
// 没有遇到边界也会发出，避免无空白文本（中文、URL、base64）一直积压到流结束。
const holdFactor = 4

// Rechunker 把上游片段重新切分为大小接近 size 的输出单元。
// 切分发生在空白/非空白边界上；缓冲区末尾的一段可能尚未结束，会被保留到
// 下一个片段到达或 Flush，但保留长度不超过 holdFactor*size。
// 每次 Push 只扫描新片段。单个请求内使用，非并发安全。
type Rechunker struct {
	size int
	hold int

	// pending 是已结束、尚未凑够 size 的段
	pending  strings.Builder
	pendingN int
	// tail 是当前未结束的段
	tail     strings.Builder
	tailN    int
	inRun    bool
	runSpace bool
}

// NewRechunker 创建目标大小为 size 个字符的切分器
func NewRechunker(size int) *Rechunker {
	if size < 1 {
		size = 1
	}
	return &Rechunker{size: size, hold: size * holdFactor}
}

// Push 追加一个片段并返回可以立即发出的单元
func (c *Rechunker) Push(fragment string) []string {
	if fragment == "" {
		return nil
	}

	var units []string
	for _, r := range fragment {
		space := unicode.IsSpace(r)
		if c.inRun && space != c.runSpace {
			units = c.closeRun(units)
		}
		c.inRun = true
		c.runSpace = space
		c.tail.WriteRune(r)
		c.tailN++
	}

	// 段仍未结束但已经足够长，不再等待边界
	if c.tailN >= c.hold {
		units = c.closeRun(units)
	}
	return units
}

// closeRun 把 tail 并入 pending，凑够 size 时发出一个单元
func (c *Rechunker) closeRun(units []string) []string {
	c.pending.WriteString(c.tail.String())
	c.pendingN += c.tailN
	c.tail.Reset()
	c.tailN = 0

	if c.pendingN >= c.size {
		units = append(units, c.pending.String())
		c.pending.Reset()
		c.pendingN = 0
	}
	return units
}

// Flush 返回剩余的全部内容并清空缓冲区
func (c *Rechunker) Flush() string {
	rest := c.pending.String() + c.tail.String()
	c.pending.Reset()
	c.tail.Reset()
	c.pendingN, c.tailN = 0, 0
	c.inRun = false
	return rest
}

// Buffered 返回尚未发出的字符数
func (c *Rechunker) Buffered() int {
	return c.pendingN + c.tailN
}
