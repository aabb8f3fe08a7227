package sdate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWindowing(t *testing.T) {
	d, err := Parse("69/01/02 03:04:05")
	assert.NoError(t, err)
	assert.Equal(t, 1969, d.Time().Year())

	d2, err := Parse("68/01/02 03:04:05")
	assert.NoError(t, err)
	assert.Equal(t, 2068, d2.Time().Year())
}

func TestRoundTrip(t *testing.T) {
	d, err := Parse("23/11/05 12:30:00")
	assert.NoError(t, err)
	assert.Equal(t, "23/11/05 12:30:00", d.String())
}

func TestMalformed(t *testing.T) {
	_, err := Parse("garbage")
	assert.Error(t, err)
}
