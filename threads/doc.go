// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

/*
Package threads 提供命名会话（thread）的持久化。

# 存储后端

  - FileStore：每条会话一个 <dir>/<id>.json，缩进 2 空格，临时文件加
    rename 原子写入。单机部署使用。
  - RedisStore：<prefix>thread:<id> 保存 JSON，<prefix>threads 为按
    created_at 打分的有序集合。
  - SQLStore：GORM 的 threads 表，messages 列为 JSON 文本，支持 sqlite、
    postgres 与 mysql。

NewStore 按 config.ThreadsConfig.Driver 选择后端。

# 语义

Save 覆盖同 id 记录；Get 与 Delete 对未知 id 返回 ErrNotFound；
List 按 created_at 倒序返回摘要。NewThread 负责填充默认 id、时间戳与模型名。
*/
package threads
