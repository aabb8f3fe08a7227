package sid

import "testing"

import "github.com/stretchr/testify/assert"

func TestParseAndString(t *testing.T) {
	cases := []struct {
		in   string
		want Sid
	}{
		{"1", Sid{Release: 1}},
		{"1.2", Sid{Release: 1, Level: 2}},
		{"1.2.3.4", Sid{Release: 1, Level: 2, Branch: 3, Sequence: 4}},
		{"", Null},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		assert.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestParseRejectsThreeComponents(t *testing.T) {
	_, err := Parse("1.2.3")
	assert.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "1.2", "1.2.3.4"} {
		got, err := Parse(s)
		assert.NoError(t, err)
		assert.Equal(t, s, got.String())
	}
}

func TestSuccessorTrunk(t *testing.T) {
	s := Sid{Release: 1, Level: 1}
	next := s.Successor(false, nil)
	assert.Equal(t, Sid{Release: 1, Level: 2}, next)
}

func TestSuccessorBranch(t *testing.T) {
	s := Sid{Release: 1, Level: 1}
	next := s.Successor(true, []int{1, 2})
	assert.Equal(t, Sid{Release: 1, Level: 1, Branch: 3, Sequence: 1}, next)
}

func TestRangeContains(t *testing.T) {
	ranges, err := ParseRange("1.1-1.3,2.1")
	assert.NoError(t, err)
	assert.True(t, AnyContains(ranges, Sid{Release: 1, Level: 2}))
	assert.True(t, AnyContains(ranges, Sid{Release: 2, Level: 1}))
	assert.False(t, AnyContains(ranges, Sid{Release: 1, Level: 4}))
}

func TestPartial(t *testing.T) {
	s, _ := Parse("1")
	assert.True(t, s.Partial())
	s2, _ := Parse("1.2")
	assert.False(t, s2.Partial())
}
