// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

/*
Package types 提供 LLMRelay 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包。目前只承载结构化错误体系：

  - Error / ErrorCode: 错误码、HTTP 状态码、Retryable 标记与 Cause 链
  - AsError / IsErrorCode / IsRetryable / GetErrorCode: 错误工具链
  - NewInvalidRequestError / NewNotFoundError / NewServiceUnavailableError: 常用构造
*/
package types
