// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/WaitForShutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小、
    优雅关闭超时以及是否启用 h2c。

# 流式连接

转发接口的响应可能持续数分钟，因此 WriteTimeout 默认为 0。
Shutdown 先等待连接排空，超过 ShutdownTimeout 后调用 Close
强制断开，正在转发的请求随之以 Cancelled 结束并释放上游连接。
*/
package server
