package intake

import (
	"fmt"
	"time"

	"github.com/defensoria-civil/divorcios/storage"
)

// turn 单个阶段处理器的输入与工作副本
type turn struct {
	e    *Engine
	c    *storage.Case
	text string
	now  time.Time
	// 下一问题之前的确认语
	ack string
}

// handler 校验输入、写入工作副本并返回下一阶段；失败时返回 VALIDATION_FAILED
type handler func(t *turn) (Phase, error)

// handlers 按阶段枚举索引；nil 表示走自由问答
var handlers = [phaseCount]handler{
	PhaseStart:                        handleStart,
	PhaseChoosingType:                 handleChoosingType,
	PhaseCollectingName:               handleName,
	PhaseCollectingDNI:                handleDNI,
	PhaseCollectingBirthDate:          handleBirthDate,
	PhaseCollectingAddress:            handleAddress,
	PhaseCollectingSpouseName:         handleSpouseName,
	PhaseCollectingSpouseAddress:      handleSpouseAddress,
	PhaseCollectingEmployment:         handleEmployment,
	PhaseCollectingIncome:             handleIncome,
	PhaseCollectingHousing:            handleHousing,
	PhaseCollectingRent:               handleRent,
	PhaseAskingDependents:             handleAskingDependents,
	PhaseCollectingDependentsCount:    handleDependentsCount,
	PhaseCollectingDependentName:      handleDependentName,
	PhaseCollectingDependentBirthDate: handleDependentBirthDate,
	PhaseAskingAssets:                 handleAskingAssets,
	PhaseCollectingAssets:             handleAssets,
}

// handleStart 首条消息已说明类型时直接进入姓名收集，否则发送欢迎语
func handleStart(t *turn) (Phase, error) {
	typ, err := ChooseType(t.text)
	if err != nil {
		return PhaseChoosingType, nil
	}
	t.c.Type = typ
	t.ack = fmt.Sprintf(msgTypeChosen, typ)
	return PhaseCollectingName, nil
}

func handleChoosingType(t *turn) (Phase, error) {
	typ, err := ChooseType(t.text)
	if err != nil {
		return 0, err
	}
	t.c.Type = typ
	t.ack = fmt.Sprintf(msgTypeChosen, typ)
	return PhaseCollectingName, nil
}

func handleName(t *turn) (Phase, error) {
	name, err := ValidateName(t.text, msgInvalidName)
	if err != nil {
		return 0, err
	}
	t.c.Name = name
	t.ack = fmt.Sprintf("Gracias, %s. ", name)
	return PhaseCollectingDNI, nil
}

func handleDNI(t *turn) (Phase, error) {
	dni, err := ValidateDNI(t.text)
	if err != nil {
		return 0, err
	}
	t.c.DNI = dni
	return PhaseCollectingBirthDate, nil
}

func handleBirthDate(t *turn) (Phase, error) {
	d, err := ValidateDate(t.text, t.now, t.e.cfg.MinAge)
	if err != nil {
		return 0, err
	}
	t.c.BirthDate = d
	t.ack = "✅ Perfecto. "
	return PhaseCollectingAddress, nil
}

func handleAddress(t *turn) (Phase, error) {
	addr, err := ValidateAddress(t.text, t.e.cfg.AllowedJurisdictions)
	if err != nil {
		return 0, err
	}
	t.c.Address = addr
	return PhaseCollectingSpouseName, nil
}

func handleSpouseName(t *turn) (Phase, error) {
	name, err := ValidateName(t.text, msgInvalidSpouseName)
	if err != nil {
		return 0, err
	}
	t.c.SpouseName = name
	return PhaseCollectingSpouseAddress, nil
}

func handleSpouseAddress(t *turn) (Phase, error) {
	addr, err := ValidateSpouseAddress(t.text)
	if err != nil {
		return 0, err
	}
	t.c.SpouseAddress = addr
	t.ack = "Gracias. Ahora unas preguntas sobre tu situación económica, para saber si podés acceder al patrocinio gratuito.\n\n"
	return PhaseCollectingEmployment, nil
}

func handleEmployment(t *turn) (Phase, error) {
	emp, err := ValidateEmployment(t.text)
	if err != nil {
		return 0, err
	}
	t.c.Employment = emp
	return PhaseCollectingIncome, nil
}

func handleIncome(t *turn) (Phase, error) {
	n, err := ParseAmount(t.text)
	if err != nil {
		return 0, err
	}
	t.c.MonthlyIncome = n
	return PhaseCollectingHousing, nil
}

func handleHousing(t *turn) (Phase, error) {
	h, err := ValidateHousing(t.text)
	if err != nil {
		return 0, err
	}
	t.c.Housing = h
	if h == storage.HousingRented {
		return PhaseCollectingRent, nil
	}
	t.c.MonthlyRent = 0
	return PhaseAskingDependents, nil
}

func handleRent(t *turn) (Phase, error) {
	n, err := ParseAmount(t.text)
	if err != nil {
		return 0, err
	}
	t.c.MonthlyRent = n
	return PhaseAskingDependents, nil
}

func handleAskingDependents(t *turn) (Phase, error) {
	yes, err := ParseYesNo(t.text)
	if err != nil {
		return 0, err
	}
	t.c.HasDependents = yes
	if yes {
		return PhaseCollectingDependentsCount, nil
	}
	t.c.DependentsCount = 0
	t.c.DependentIndex = 0
	t.c.Dependents = nil
	return PhaseAskingAssets, nil
}

func handleDependentsCount(t *turn) (Phase, error) {
	n, err := ParseCount(t.text, 1, t.e.cfg.MaxDependents)
	if err != nil {
		return 0, err
	}
	t.c.DependentsCount = n
	t.c.DependentIndex = 0
	t.c.Dependents = make([]storage.Dependent, 0, n)
	return PhaseCollectingDependentName, nil
}

func handleDependentName(t *turn) (Phase, error) {
	name, err := ValidateName(t.text, msgInvalidChildName)
	if err != nil {
		return 0, err
	}
	idx := t.c.DependentIndex
	if idx < len(t.c.Dependents) {
		t.c.Dependents[idx] = storage.Dependent{Name: name}
	} else {
		t.c.Dependents = append(t.c.Dependents, storage.Dependent{Name: name})
	}
	return PhaseCollectingDependentBirthDate, nil
}

func handleDependentBirthDate(t *turn) (Phase, error) {
	d, err := ValidateDate(t.text, t.now, 0)
	if err != nil {
		return 0, err
	}
	idx := t.c.DependentIndex
	if idx >= len(t.c.Dependents) {
		// 名字尚未记录，回到收集名字
		return PhaseCollectingDependentName, nil
	}
	t.c.Dependents[idx].BirthDate = d
	t.c.DependentIndex = idx + 1
	if t.c.DependentIndex < t.c.DependentsCount {
		return PhaseCollectingDependentName, nil
	}
	return PhaseAskingAssets, nil
}

func handleAskingAssets(t *turn) (Phase, error) {
	yes, err := ParseYesNo(t.text)
	if err != nil {
		return 0, err
	}
	t.c.HasAssets = yes
	if yes {
		return PhaseCollectingAssets, nil
	}
	t.c.AssetsDescription = ""
	return PhaseDocumentation, nil
}

func handleAssets(t *turn) (Phase, error) {
	desc, err := ValidateAssets(t.text)
	if err != nil {
		return 0, err
	}
	t.c.AssetsDescription = desc
	return PhaseDocumentation, nil
}
