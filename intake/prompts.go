package intake

import (
	"fmt"

	"github.com/defensoria-civil/divorcios/storage"
)

// 固定回复
const (
	// DuplicateReply 重复投递的内部回复，不会发送
	DuplicateReply = "duplicate, ignored"
	// TechnicalProblemReply 持久化失败时 webhook 发送的提示
	TechnicalProblemReply = "Tuvimos un problema técnico. Por favor intentá de nuevo en unos minutos."

	msgWelcome = "¡Hola! Soy el asistente virtual de la Defensoría Civil de San Rafael.\n" +
		"Te voy a guiar paso a paso para iniciar tu trámite de divorcio.\n\n" +
		"¿Qué tipo de divorcio querés iniciar: *unilateral* (solo vos) o *conjunta* (los dos de común acuerdo)?"
	msgTypeChosen = "Perfecto, divorcio %s. Ahora necesito algunos datos personales.\n\n"

	msgInvalidType       = "Por favor respondé *unilateral* si querés iniciar solo vos, o *conjunta* si van a iniciar juntos."
	msgInvalidName       = "Necesito tu nombre completo real (nombre y apellido, solo letras) para continuar con el trámite. ¿Podés indicármelo?"
	msgInvalidSpouseName = "Necesito el nombre completo de tu cónyuge (nombre y apellido, solo letras)."
	msgInvalidChildName  = "Necesito el nombre completo de tu hijo/a (nombre y apellido, solo letras)."
	msgInvalidDNI        = "Ingresá un DNI válido de 7 u 8 dígitos, sin puntos ni espacios."
	msgInvalidEmployment = "No entendí tu situación laboral. Respondé una opción: empleado/a, desempleado/a, autónomo/monotributista, jubilado/a o informal."
	msgInvalidAmount     = "Ingresá un monto en pesos, solo números (ej: 350000)."
	msgInvalidHousing    = "Respondé si tu vivienda es propia, alquilada, prestada u otra."
	msgInvalidYesNo      = "Por favor respondé *sí* o *no*."
	msgInvalidCount      = "Ingresá un número entre %d y %d."
	msgInvalidAssets     = "Contanos brevemente qué bienes tienen (ej: una casa y un auto)."
	msgUnknownCorrection = "¿Qué dato querés corregir? Escribí \"corregir\" seguido de: nombre, dni, fecha o domicilio."

	msgCorrected            = "✅ Listo, actualizamos el dato."
	msgCorrectedPendingDocs = "✅ Listo, actualizamos el dato. Podés seguir enviando la documentación."
	msgDataComplete         = "✅ ¡Gracias! Ya tenemos tus datos personales y económicos."
	msgEligible             = "Según lo que nos contaste, en principio podrías acceder al patrocinio gratuito de la Defensoría (evaluación preliminar)."
	msgNotEligible          = "Un/a operador/a va a evaluar si corresponde el patrocinio gratuito de la Defensoría."
	msgCompleted            = "Tu documentación ya está completa. Si tenés alguna consulta, escribinos."
)

// promptFor 进入某阶段时向用户提出的问题
func (e *Engine) promptFor(p Phase, c *storage.Case) string {
	switch p {
	case PhaseChoosingType:
		return msgWelcome
	case PhaseCollectingName:
		return "¿Cuál es tu nombre completo?"
	case PhaseCollectingDNI:
		return "¿Cuál es tu número de DNI? (sin puntos)"
	case PhaseCollectingBirthDate:
		return "¿Cuál es tu fecha de nacimiento? Formato: DD/MM/AAAA"
	case PhaseCollectingAddress:
		return "¿Cuál es tu domicilio actual?\n\nEjemplo: San Martín 123, San Rafael, Mendoza"
	case PhaseCollectingSpouseName:
		return "¿Cuál es el nombre completo de tu cónyuge?"
	case PhaseCollectingSpouseAddress:
		return "¿Cuál es el domicilio actual de tu cónyuge? Si no lo sabés, respondé \"no sé\"."
	case PhaseCollectingEmployment:
		return "¿Cuál es tu situación laboral? Respondé una opción: empleado/a, desempleado/a, autónomo/monotributista, jubilado/a o informal."
	case PhaseCollectingIncome:
		return "¿Cuál es tu ingreso mensual neto aproximado, en pesos? (ej: 350000)"
	case PhaseCollectingHousing:
		return "¿Tu vivienda es propia, alquilada, prestada u otra?"
	case PhaseCollectingRent:
		return "¿Cuánto pagás de alquiler por mes, en pesos?"
	case PhaseAskingDependents:
		return "¿Tenés hijos/as menores de edad o a tu cargo? (sí/no)"
	case PhaseCollectingDependentsCount:
		return fmt.Sprintf("¿Cuántos hijos/as a cargo tenés? (1 a %d)", e.cfg.MaxDependents)
	case PhaseCollectingDependentName:
		return fmt.Sprintf("¿Cuál es el nombre completo de tu hijo/a N° %d?", c.DependentIndex+1)
	case PhaseCollectingDependentBirthDate:
		name := "tu hijo/a"
		if c.DependentIndex < len(c.Dependents) {
			name = c.Dependents[c.DependentIndex].Name
		}
		return fmt.Sprintf("¿Cuál es la fecha de nacimiento de %s? Formato: DD/MM/AAAA", name)
	case PhaseAskingAssets:
		return "¿Tienen bienes registrables en común (casa, terreno, auto, moto)? (sí/no)"
	case PhaseCollectingAssets:
		return "Contanos brevemente qué bienes tienen (ej: una casa en San Rafael y un auto)."
	case PhaseCompleted:
		return msgCompleted
	}
	return ""
}

const freeFormSystemPrompt = `Sos un asistente legal de la Defensoría Civil de San Rafael, Mendoza, Argentina.
Tu rol es ayudar con trámites de divorcio de forma amigable y profesional.

CONTEXTO DEL CASO:
%s

REGLAS IMPORTANTES:
- Respondé en español argentino informal (vos)
- Sé breve y claro (máximo 3-4 oraciones)
- Respondé solo sobre el trámite de divorcio y la documentación del caso; si te preguntan otra cosa, explicá amablemente que solo podés ayudar con eso
- Si no sabés algo, admitilo y sugerí consultar con un operador de la Defensoría
- NO inventes datos específicos (fechas, números de expediente, juzgados, nombres)
- Para temas sensibles (violencia, menores), sugerí consulta presencial`

const summaryPrompt = `Resumí en 2 o 3 oraciones los datos clave de este caso de divorcio para que un operador los entienda rápido. No agregues datos que no estén en la lista.

%s

Resumen:`
