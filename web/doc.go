// Copyright (c) LLMRelay Authors.
// Licensed under the MIT License.

/*
Package web 内嵌聊天页面的模板与静态资源。

index.html 在启动时解析一次，渲染时注入可选模型列表与默认模型。
静态资源默认来自内嵌文件系统，配置 web.static_dir 后改为从磁盘目录读取，
便于前端开发时热替换。
*/
package web
