// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

/*
Package backend 封装对 Ollama 后端的非流式访问。

Client 查询 /api/tags 得到已安装模型，并提供 Ping 供就绪检查使用。
Installer 在后台执行 `ollama pull`，同一模型同时只允许一个安装进程；
启动前先探测后端，失败时按错误类型给出面向用户的提示。
Statuses 与 Catalog 把配置中的模型列表与安装状态合并为响应项。

流式生成不在本包中，见 relay 包。
*/
package backend
