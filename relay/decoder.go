package relay

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errNotObject = errors.New("line is not a JSON object")

// Decoded 是单行解码结果：Fragment 或 DecodeError 二选一
type Decoded interface {
	decoded()
}

// Fragment 是一行成功解析出的增量文本
type Fragment struct {
	Text string
	Done bool
}

// DecodeError 标记一行无法解析，携带原始内容
type DecodeError struct {
	Raw []byte
	Err error
}

func (Fragment) decoded()    {}
func (DecodeError) decoded() {}

// Error implements error.
func (e DecodeError) Error() string {
	return "decode upstream line: " + e.Err.Error()
}

// backendLine 是后端每行 JSON 中关心的字段
type backendLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Decode 解析一行上游数据，从不 panic，也不返回 error。
func Decode(line []byte) Decoded {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return DecodeError{Raw: line, Err: errNotObject}
	}
	var bl backendLine
	if err := json.Unmarshal(trimmed, &bl); err != nil {
		return DecodeError{Raw: line, Err: err}
	}
	return Fragment{Text: bl.Response, Done: bl.Done}
}
