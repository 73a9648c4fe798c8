package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tests := []struct {
		path, dir string
		ok        bool
	}{
		{"/out/plots/h_R.png", "/out", true},
		{"/out/summary.json", "/out", true},
		{"/out", "/out", true},
		{"/out/../etc/passwd", "/out", false},
		{"/outside/x", "/out", false},
		{"report/plots/../summary.json", "report", true},
		{"report/../../x", "report", false},
	}
	for _, tt := range tests {
		err := ValidatePathWithinDirectory(tt.path, tt.dir)
		if tt.ok {
			assert.NoError(t, err, tt.path)
		} else {
			assert.Error(t, err, tt.path)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Test/h_R", "Test_h_R"},
		{"h_EventCounter", "h_EventCounter"},
		{"../../etc/passwd", "etc_passwd"},
		{"h5 RpT//mass", "h5_RpT_mass"},
		{"a__b", "a_b"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}
	assert.LessOrEqual(t, len(SanitizeFilename(strings.Repeat("x", 500))), 128)
}
