// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

// Package netdiag 提供 DNS 解析探测与系统 DNS 服务器发现，
// 用于排查模型下载时的网络问题。
package netdiag
