package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrengthFor(t *testing.T) {
	assert.Equal(t, StrengthStrong, StrengthFor(0.72))
	assert.Equal(t, StrengthStrong, StrengthFor(0.70))
	assert.Equal(t, StrengthModerate, StrengthFor(0.69))
	assert.Equal(t, StrengthModerate, StrengthFor(0.60))
	assert.Equal(t, StrengthModerate, StrengthFor(0.55))
	assert.Equal(t, StrengthWeak, StrengthFor(0.54))
	assert.Equal(t, StrengthWeak, StrengthFor(0.40))
}
