package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeGroup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gophers", "gophers"},
		{"@gophers", "gophers"},
		{"t.me/gophers", "gophers"},
		{"  https://telegram.me/gophers\n", "gophers"},
		{"http://t.me/@gophers", "gophers"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeGroup(tt.in), tt.in)
	}
}
