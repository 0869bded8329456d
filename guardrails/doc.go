// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package guardrails 为每条生成的回复把关。

# 阶段

  - 输入：提示注入子串过滤（英语与西语模式），命中时返回固定拒绝语
  - 输出：CUIT、DNI、电话、邮箱按顺序脱敏，从不拦截
  - 幻觉：Scorer 策略接口，规则评分器（含法律建议措辞检查）与
    LLM 评审器；评审失败时回退到规则评分

判定不通过时回复固定道歉语，不重新生成。
*/
package guardrails
