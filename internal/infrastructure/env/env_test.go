package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetBool(t *testing.T) {
	e := &EnvService{}

	t.Setenv("TEST_BOOL", "true")
	assert.True(t, e.GetBool("TEST_BOOL", false))

	t.Setenv("TEST_BOOL", "nope")
	assert.True(t, e.GetBool("TEST_BOOL", true), "unparseable values fall back to the default")

	assert.False(t, e.GetBool("TEST_BOOL_UNSET", false))
}

func TestGetInt(t *testing.T) {
	e := &EnvService{}

	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, e.GetInt("TEST_INT", 7))

	t.Setenv("TEST_INT", "forty-two")
	assert.Equal(t, 7, e.GetInt("TEST_INT", 7))
}

func TestGetDuration(t *testing.T) {
	e := &EnvService{}

	t.Setenv("TEST_DUR", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, e.GetDuration("TEST_DUR", time.Second))

	t.Setenv("TEST_DUR", "soon")
	assert.Equal(t, time.Second, e.GetDuration("TEST_DUR", time.Second))

	assert.Equal(t, 30*time.Second, e.GetDuration("TEST_DUR_UNSET", 30*time.Second))
}
