package storage

import "time"

// MemoryKind 记忆类型
type MemoryKind string

const (
	KindImmediate MemoryKind = "immediate"
	KindSession   MemoryKind = "session"
	KindEpisodic  MemoryKind = "episodic"
	KindSemantic  MemoryKind = "semantic"
)

// Role 发言方
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// 工作状况取值
const (
	EmploymentEmployed     = "empleado"
	EmploymentUnemployed   = "desempleado"
	EmploymentSelfEmployed = "autonomo"
	EmploymentRetired      = "jubilado"
	EmploymentInformal     = "informal"
)

// 住房类型取值
const (
	HousingOwned    = "propia"
	HousingRented   = "alquilada"
	HousingBorrowed = "prestada"
	HousingOther    = "otra"
)

// 离婚类型取值
const (
	TypeUnilateral = "unilateral"
	TypeJoint      = "conjunta"
)

// Dependent 子女/受抚养人
type Dependent struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
}

// Case 一个终端用户（电话/JID）对应一条离婚案件受理记录。
// 日期字段统一存为 YYYY-MM-DD 字符串，三种方言行为一致。
type Case struct {
	ID       uint   `gorm:"primaryKey"`
	Identity string `gorm:"size:64;not null;uniqueIndex"`
	Phase    string `gorm:"size:64;not null;default:start"`
	Type     string `gorm:"size:32;not null;default:''"`

	Name          string `gorm:"size:120;not null;default:''"`
	DNI           string `gorm:"column:dni;size:16;not null;default:''"`
	BirthDate     string `gorm:"size:10;not null;default:''"`
	Address       string `gorm:"not null;default:''"`
	SpouseName    string `gorm:"size:120;not null;default:''"`
	SpouseAddress string `gorm:"not null;default:''"`
	MarriageDate  string `gorm:"size:10;not null;default:''"`
	MarriagePlace string `gorm:"size:255;not null;default:''"`

	Employment      string      `gorm:"size:32;not null;default:''"`
	MonthlyIncome   int64       `gorm:"not null;default:0"`
	Housing         string      `gorm:"size:32;not null;default:''"`
	MonthlyRent     int64       `gorm:"not null;default:0"`
	HasDependents   bool        `gorm:"not null;default:false"`
	DependentsCount int         `gorm:"not null;default:0"`
	DependentIndex  int         `gorm:"not null;default:0"`
	Dependents      []Dependent `gorm:"serializer:json"`

	HasAssets         bool   `gorm:"not null;default:false"`
	AssetsDescription string `gorm:"not null;default:''"`

	EligiblePreliminary bool   `gorm:"not null;default:false"`
	EligibilityReason   string `gorm:"not null;default:''"`

	// 纠错路径：有效回答后回到该阶段
	ReturnPhase string `gorm:"size:64;not null;default:''"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (Case) TableName() string { return "cases" }

// Turn 一条不可变的入站或出站消息
type Turn struct {
	ID        uint   `gorm:"primaryKey"`
	CaseID    uint   `gorm:"not null;index:idx_turns_case_id,priority:1"`
	Role      Role   `gorm:"size:16;not null"`
	Content   string `gorm:"not null"`
	CreatedAt time.Time
}

// TableName implements gorm's tabler.
func (Turn) TableName() string { return "turns" }

// MemoryItem 分层记忆条目。semantic 条目不属于任何案件（CaseID 为 nil）。
// Embedding 为 nil 时表示向量不可用，仍可按时间检索。
type MemoryItem struct {
	ID         uint       `gorm:"primaryKey"`
	CaseID     *uint      `gorm:"uniqueIndex:uq_memory_session,priority:1;index:idx_memory_kind,priority:2"`
	Kind       MemoryKind `gorm:"size:16;not null;uniqueIndex:uq_memory_session,priority:2;index:idx_memory_kind,priority:1"`
	SessionKey *string    `gorm:"size:64;uniqueIndex:uq_memory_session,priority:3"`
	Title      *string    `gorm:"size:255"`
	Content    string     `gorm:"not null"`
	Embedding  []float32  `gorm:"serializer:json"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName implements gorm's tabler.
func (MemoryItem) TableName() string { return "memory_items" }

// DocumentCategory 支持文件类别
type DocumentCategory string

const (
	DocDNI                 DocumentCategory = "dni"
	DocMarriageCertificate DocumentCategory = "marriage_certificate"
	DocANSESNegative       DocumentCategory = "anses_negative"
	DocBirthCertificate    DocumentCategory = "birth_certificate"
	DocIncomeProof         DocumentCategory = "income_proof"
	DocUnclassified        DocumentCategory = "unclassified"
)

// Document 收到的支持文件；Content 仅在无法分类时保存原始字节
type Document struct {
	ID            string            `gorm:"primaryKey;size:36"`
	CaseID        uint              `gorm:"not null;index"`
	Category      DocumentCategory  `gorm:"size:32;not null"`
	MimeType      string            `gorm:"size:64;not null;default:''"`
	SizeBytes     int64             `gorm:"not null;default:0"`
	Content       []byte            `gorm:"type:blob"`
	ExtractedText string            `gorm:"not null;default:''"`
	Fields        map[string]string `gorm:"serializer:json"`
	Confidence    float64           `gorm:"not null;default:0"`
	CreatedAt     time.Time
}

// TableName implements gorm's tabler.
func (Document) TableName() string { return "documents" }
