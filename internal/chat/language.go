package chat

import "strings"

var spanishMarkers = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "un": true, "una": true,
	"de": true, "en": true, "que": true, "por": true, "para": true, "con": true,
	"casa": true, "hola": true, "busco": true, "quiero": true, "necesito": true,
	"dónde": true, "cuánto": true, "gracias": true, "tiene": true, "hay": true,
}

// detectLanguage guesses the conversation language from the first user turn.
// It only needs to separate the two languages the platform supports, so a
// small stopword check is enough.
func detectLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return "en"
	}

	hits := 0
	for _, w := range words {
		if spanishMarkers[strings.Trim(w, ".,;:!?¿¡")] {
			hits++
		}
	}
	if hits*3 >= len(words) {
		return "es"
	}
	return "en"
}
