// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package document 处理用户通过 WhatsApp 发送的支持文件（图片或 PDF）。

流程：非图片先栅格化首页（pdftoppm）→ 按优先级（DNI → ANSES 负面证明 → 结婚证）
只尝试案件尚缺的结构化提取器 → 第一个置信度达标的结果胜出并回写案件 →
全部未达标时走通用 OCR + 关键词分类 → 仍无法识别时按 unclassified 保存原始字节
并请用户重拍。

OCR 通过路由器的 vision_ocr 任务完成，JSON 回复去除 markdown 围栏后解析。
*/
package document
