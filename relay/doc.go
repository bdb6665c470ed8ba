/*
Package relay 实现流式转发管线：上游客户端 → 行解码 → 重新分块 → 节奏控制。

# 组件

  - UpstreamClient: 向后端发起一次流式 POST，由生产者 goroutine 把非空行推入有界通道
  - Decode: 把一行解析为 Fragment 或 DecodeError，单行失败不会中断管线
  - Rechunker: 按空白边界把片段重新切分为目标大小的输出单元
  - Pacer: 基于 x/time/rate 在相邻单元之间保持固定间隔
  - Relay: 按 Mode 组装管线并负责连接的打开与释放

# 模式

  - ModePaced: 纯文本，重新分块，按 slow/medium/fast 档位节奏输出
  - ModePassthrough: NDJSON，原样转发每一行，固定间隔
  - ModeSimple: 纯文本，解码后立即输出，无分块无等待

调用方断开（写入失败或 ctx 取消）后，Relay 立即停止读取上游并关闭连接。
*/
package relay
