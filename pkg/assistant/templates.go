package assistant

// narration holds the deterministic per-language templates the streamer can
// emit without an LLM round trip.
type narration struct {
	Searching string
	Timeout   string
}

// templates covers the supported assistant languages. Unknown languages fall
// back to English.
var templates = map[string]narration{
	"he": {
		Searching: "מחפש מסעדות שמתאימות לבקשה שלך…",
		Timeout:   "החיפוש לוקח יותר זמן מהצפוי. נסו שוב בעוד רגע.",
	},
	"en": {
		Searching: "Searching for restaurants that match your request…",
		Timeout:   "The search is taking longer than expected. Please try again in a moment.",
	},
	"ar": {
		Searching: "جارٍ البحث عن مطاعم تناسب طلبك…",
		Timeout:   "يستغرق البحث وقتًا أطول من المتوقع. حاول مرة أخرى بعد قليل.",
	},
	"ru": {
		Searching: "Ищем рестораны по вашему запросу…",
		Timeout:   "Поиск занимает больше времени, чем ожидалось. Попробуйте ещё раз чуть позже.",
	},
	"fr": {
		Searching: "Recherche de restaurants correspondant à votre demande…",
		Timeout:   "La recherche prend plus de temps que prévu. Réessayez dans un instant.",
	},
	"es": {
		Searching: "Buscando restaurantes que coincidan con tu petición…",
		Timeout:   "La búsqueda está tardando más de lo esperado. Inténtalo de nuevo en un momento.",
	},
}

// templateFor returns the narration set for the language, defaulting to
// English.
func templateFor(language string) narration {
	if t, ok := templates[language]; ok {
		return t
	}
	return templates["en"]
}
