package llm

// TaskType 决定模型选择与超时.
type TaskType string

const (
	TaskChat               TaskType = "chat"
	TaskReasoning          TaskType = "reasoning"
	TaskHallucinationCheck TaskType = "hallucination_check"
	TaskVisionOCR          TaskType = "vision_ocr"
	TaskEmbeddings         TaskType = "embeddings"
)

// AllTaskTypes 按固定顺序列出所有任务类型.
var AllTaskTypes = []TaskType{
	TaskChat,
	TaskReasoning,
	TaskHallucinationCheck,
	TaskVisionOCR,
	TaskEmbeddings,
}

// Valid 报告任务类型是否已知.
func (t TaskType) Valid() bool {
	for _, known := range AllTaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ModelSelector 将任务类型映射到某个 Provider 的模型名.
type ModelSelector interface {
	ModelFor(task string) string
}

// ModelMap 是最简单的 ModelSelector：map 查找，缺省时回退到 Default.
type ModelMap struct {
	Default string
	Tasks   map[TaskType]string
}

// ModelFor implements ModelSelector.
func (m ModelMap) ModelFor(task string) string {
	if v, ok := m.Tasks[TaskType(task)]; ok && v != "" {
		return v
	}
	return m.Default
}
