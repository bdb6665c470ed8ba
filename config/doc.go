// Package config 提供 LLMRelay 的配置管理功能。
//
// 配置来源依次为默认值、YAML 文件、LLMRELAY_ 前缀的环境变量。
// 配置在启动时加载一次，之后以不可变值的形式传给各组件。
package config
