package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"I'm looking for a house with 3 bedrooms", "en"},
		{"Hola, busco una casa en la playa", "es"},
		{"¿Cuánto cuesta el apartamento de la calle mayor?", "es"},
		{"", "en"},
		{"Testville", "en"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, detectLanguage(tt.text), "text: %q", tt.text)
	}
}
