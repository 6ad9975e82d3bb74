package mathx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 1, Clamp(0, 1, 64))
	assert.Equal(t, 64, Clamp(100, 1, 64))
	assert.Equal(t, 8, Clamp(8, 64, 1))
	assert.Equal(t, time.Duration(0), Clamp(-time.Second, 0, time.Minute))
}

func TestMax(t *testing.T) {
	assert.Equal(t, 3, Max(3, -1))
	assert.Equal(t, int16(5), Max(int16(2), int16(5)))
}
