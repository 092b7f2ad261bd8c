package chat

import "strings"

// canned is a keyword-triggered answer.
type canned struct {
	keywords []string
	answer   string
}

func (c canned) matches(msg string) bool {
	for _, k := range c.keywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

// pageInfo is the site knowledge given to the model with every prompt.
var pageInfo = []canned{
	{
		keywords: []string{"precio", "costo", "valor"},
		answer:   "Nuestras expediciones parten desde $50 USD por persona. Incluye transporte y uso de equipos profesionales.",
	},
	{
		keywords: []string{"ubicacion", "donde", "lugar"},
		answer:   "Realizamos expediciones en lugares con cielos oscuros certificados, como el Desierto de Atacama en Chile y el Teide en España.",
	},
	{
		keywords: []string{"contacto", "email", "telefono"},
		answer:   "Puedes contactarnos a través del formulario al final de la página o escribirnos a contacto@cieloabierto.com.",
	},
}

// simulated answers questions when no model is configured.
var simulated = []canned{
	{
		keywords: []string{"hola", "saludos"},
		answer:   "¡Saludos, explorador estelar! Soy AstroGuía. Mi misión es conectarte con el conocimiento del universo. ¿En qué puedo ayudarte hoy? 🚀",
	},
	{
		keywords: []string{"negro", "black hole"},
		answer:   "Los agujeros negros son regiones del espacio con una gravedad tan intensa que nada, ni siquiera la luz, puede escapar de ellos. Se forman cuando estrellas masivas colapsan al final de sus vidas. ¿Te gustaría saber sobre Sagitario A*, el que está en el centro de nuestra galaxia? 🕳️",
	},
	{
		keywords: []string{"luna", "moon"},
		answer:   "La Luna es el único satélite natural de la Tierra. Se formó hace unos 4.5 mil millones de años, probablemente tras un gran impacto. Actualmente, nos estamos preparando para volver a ella con el programa Artemis. ¿Quieres saber cuándo será el próximo alunizaje?",
	},
	{
		keywords: []string{"marte", "mars"},
		answer:   "Marte, el planeta rojo, es el objetivo principal para la futura exploración humana. Tiene el volcán más grande del sistema solar, el Monte Olimpo. ¡Espero que algún día podamos visitarlo juntos! 🔴",
	},
	{
		keywords: []string{"evento", "reserva"},
		answer:   "Para eventos y reservas, por favor consulta nuestra sección de 'Eventos'. Ahí encontrarás expediciones de observación y lanzamientos en vivo.",
	},
}

// Fixed replies.
const (
	ReplyLaunch = "¡Oh! El lanzamiento de SpaceX es un evento emocionante. El Starship Flight 6 está programado para enero. Puedes ver los detalles en la pestaña de 'Tiempo Real' en la sección de Eventos. ¡No te lo pierdas! 🚀"

	ReplyNeedsKey = "Para conectarme con mi cerebro positrónico (Gemini), necesitas configurar la API KEY en el archivo .env. ¡Búscalo en la carpeta del proyecto!"

	ReplyDefault = "Esa es una pregunta fascinante. Actualmente estoy operando en modo de simulación porque mi enlace con Gemini no está activo. Configura tu API Key para desbloquear todo mi conocimiento. ¿Te gustaría saber sobre los planetas mientras tanto? ✨"

	ReplyInterference = "Mis sensores detectan una interferencia. Es posible que la API Key no sea válida o haya un problema de red. Por favor verifica tu configuración. 📡"
)

const persona = `Eres AstroGuía, un asistente IA experto en astronomía y física integrado en la página web "Cielo Abierto".

TU PERSONALIDAD:
- Amable, curiosa y precisa.
- Te encanta enseñar sobre el universo.
- Respondes siempre en español.

TU CONOCIMIENTO:
1. ASTRONOMÍA Y FÍSICA: Tienes libertad total para responder cualquier duda científica. Explícate de forma clara pero rigurosa.
2. INFORMACIÓN DE LA PÁGINA: Usa el siguiente CONTEXTO para responder dudas sobre eventos, precios, ubicación y contacto. NO inventes eventos que no estén en la lista.
`

const closing = `
Si te preguntan cómo agendar: "Ve a la sección Eventos y haz clic en Reservar en el evento que te interese".
Si preguntan por pagos: "Aceptamos PayPal".`
