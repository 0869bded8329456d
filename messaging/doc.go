// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package messaging 定义出站消息通道的抽象。

Transport 负责向终端用户发送文本与文件、下载用户发来的媒体。
当前唯一实现是 messaging/waha（WhatsApp HTTP API 网关）。
*/
package messaging
