package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAny(t *testing.T) {
	assert.True(t, HasAny("database is locked", "busy", "locked"))
	assert.False(t, HasAny("database is locked", "LOCKED"))
	assert.False(t, HasAny("anything"))
}

func TestHasAnyFold(t *testing.T) {
	assert.True(t, HasAnyFold("disk I/O error", "disk i/o"))
	assert.True(t, HasAnyFold("unable to open database file", "UNABLE TO OPEN"))
	assert.False(t, HasAnyFold("syntax error", "readonly"))
}
