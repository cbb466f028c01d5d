package inference

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestElementCount(t *testing.T) {
	tests := []struct {
		shape []int64
		want  int64
	}{
		{[]int64{1, 212}, 212},
		{[]int64{1, 3, 640, 640}, 1228800},
		{[]int64{12800, 10}, 128000},
		{nil, 1},
	}

	for _, tt := range tests {
		if got := ElementCount(tt.shape); got != tt.want {
			t.Errorf("ElementCount(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestNewSessionRequiresInitialize(t *testing.T) {
	if Initialized() {
		t.Skip("runtime already initialized")
	}
	if _, err := NewSession("missing.onnx", []string{"in"}, []string{"out"}, SessionOptions{}); err == nil {
		t.Error("Expected error before Initialize")
	}
}

func TestProbeModelMissingFile(t *testing.T) {
	_, err := ProbeModel(filepath.Join(t.TempDir(), "nope.onnx"))
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
}
