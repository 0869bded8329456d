package intake

// Phase 对话状态机阶段. 数据库中保存其字符串名.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseChoosingType
	PhaseCollectingName
	PhaseCollectingDNI
	PhaseCollectingBirthDate
	PhaseCollectingAddress
	PhaseCollectingSpouseName
	PhaseCollectingSpouseAddress
	PhaseCollectingEmployment
	PhaseCollectingIncome
	PhaseCollectingHousing
	PhaseCollectingRent
	PhaseAskingDependents
	PhaseCollectingDependentsCount
	PhaseCollectingDependentName
	PhaseCollectingDependentBirthDate
	PhaseAskingAssets
	PhaseCollectingAssets
	PhaseDocumentation
	PhaseCompleted

	phaseCount
)

var phaseNames = [phaseCount]string{
	PhaseStart:                        "start",
	PhaseChoosingType:                 "choosing-type",
	PhaseCollectingName:               "collecting-name",
	PhaseCollectingDNI:                "collecting-dni",
	PhaseCollectingBirthDate:          "collecting-birthdate",
	PhaseCollectingAddress:            "collecting-address",
	PhaseCollectingSpouseName:         "collecting-spouse-name",
	PhaseCollectingSpouseAddress:      "collecting-spouse-address",
	PhaseCollectingEmployment:         "collecting-employment",
	PhaseCollectingIncome:             "collecting-income",
	PhaseCollectingHousing:            "collecting-housing",
	PhaseCollectingRent:               "collecting-rent",
	PhaseAskingDependents:             "asking-dependents",
	PhaseCollectingDependentsCount:    "collecting-dependents-count",
	PhaseCollectingDependentName:      "collecting-dependent-name",
	PhaseCollectingDependentBirthDate: "collecting-dependent-birthdate",
	PhaseAskingAssets:                 "asking-assets",
	PhaseCollectingAssets:             "collecting-assets",
	PhaseDocumentation:                "documentation",
	PhaseCompleted:                    "completed",
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p < 0 || p >= phaseCount {
		return "unknown"
	}
	return phaseNames[p]
}

// ParsePhase 把保存的阶段名还原为枚举
func ParsePhase(s string) (Phase, bool) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), true
		}
	}
	return 0, false
}

// AllPhases 按顺序列出所有阶段
func AllPhases() []Phase {
	out := make([]Phase, phaseCount)
	for i := range out {
		out[i] = Phase(i)
	}
	return out
}

// Terminal 报告阶段是否为自由问答阶段（接受纠错命令）
func (p Phase) Terminal() bool {
	return p == PhaseDocumentation || p == PhaseCompleted
}

// correctionTargets "corregir <campo>" 可回到的阶段
var correctionTargets = map[string]Phase{
	"nombre":     PhaseCollectingName,
	"dni":        PhaseCollectingDNI,
	"documento":  PhaseCollectingDNI,
	"fecha":      PhaseCollectingBirthDate,
	"nacimiento": PhaseCollectingBirthDate,
	"domicilio":  PhaseCollectingAddress,
	"direccion":  PhaseCollectingAddress,
}
