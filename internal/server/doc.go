// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package server 管理 webhook 与 metrics 两个 HTTP 监听的生命周期。

# 核心类型

  - Group：一组监听，全部绑定成功后才开始服务；Wait 监听 SIGINT/SIGTERM
    或监听意外退出，Shutdown 按固定顺序关闭。
  - Listener：单个 net/http.Server，Addr 返回实际绑定地址。
  - Config：监听地址、读写超时、空闲超时、最大请求头与关闭超时。
    ConfigFrom 由 config.ServerConfig 按端口生成。

# 关闭顺序

先停第一个登记的监听（webhook）不再接收回调；再执行 OnDrain 钩子，
等待已应答但仍在处理的消息，时限为该监听的 ShutdownTimeout；
最后停其余监听，排空期间 /metrics 仍可抓取。
*/
package server
