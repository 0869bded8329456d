// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
包 cache 封装 go-redis 客户端，为消息去重等短期状态提供统一入口。

Manager 负责连接生命周期：构造时 Ping 确认连通，后台按间隔健康检查，
Close 后所有操作返回 ErrClosed。SetNX 是去重存储依赖的原子原语。
*/
package cache
