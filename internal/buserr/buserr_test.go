package buserr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		debug string
		want  Category
	}{
		{"auth beats network", "Unauthorized", "rtsp connection refused (401)", Auth},
		{"codec", "Internal data stream error.", "streaming stopped, reason not-negotiated (not negotiated)", Codec},
		{"missing plugin", "no element \"nvv4l2decoder\"", "", Codec},
		{"device busy", "Device '/dev/video0' is busy", "gstv4l2object.c", Resource},
		{"network", "Could not open resource for reading.", "Could not connect to server", Network},
		{"timeout", "Operation timeout", "", Network},
		{"unknown", "Something odd happened", "", Unknown},
		{"empty", "", "", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text, tt.debug)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestCategory_String(t *testing.T) {
	for _, c := range Categories {
		assert.NotEmpty(t, c.String())
	}
	assert.Equal(t, "unknown", Category(99).String())
}
