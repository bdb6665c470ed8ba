// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

/*
包 database 为会话存储的 SQL 后端提供 GORM 连接与连接池管理。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 Ping、Stats、Close
    以及事务执行。
  - PoolConfig：最大空闲连接数、最大打开连接数与连接生命周期。

# 驱动

Open 根据 config.DatabaseConfig.Driver 选择方言：postgres 与 mysql
使用 gorm 官方驱动，sqlite 使用纯 Go 的 glebarez/sqlite。

WithTransactionRetry 对死锁、序列化失败、sqlite 的 "database is locked"
等错误做指数退避重试。
*/
package database
