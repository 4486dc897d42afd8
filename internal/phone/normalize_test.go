package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrect(t *testing.T) {
	cases := map[string]string{
		"":                              "",
		"+923001234567;ext=1":           "+923001234567",
		"+1923001234567":                "+923001234567",
		"03001234567":                   "+3001234567",
		"  +923001234567 ":              "+923001234567",
		"923001234567":                  "923001234567",
		"+923001234567;transport=udp;x": "+923001234567",
	}
	for in, want := range cases {
		assert.Equal(t, want, Correct(in), in)
	}
}

func TestNormalizeE164(t *testing.T) {
	n := NewNormalizer("pk")

	assert.Equal(t, "+923001234567", n.NormalizeE164("+92 300 1234567"))
	assert.Equal(t, "+923001234567", n.NormalizeE164("+1923001234567;foo=bar"))
	assert.Equal(t, "not a number", n.NormalizeE164("not a number"))
	assert.Equal(t, "", n.NormalizeE164("   "))
}

func TestNewNormalizerDefaultsRegion(t *testing.T) {
	assert.Equal(t, DefaultRegion, NewNormalizer("").region)
}
