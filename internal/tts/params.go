package tts

import (
	"math"
	"os"
	"os/exec"
	"strings"
)

const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// ClampSpeed pins speed to [MinSpeed, MaxSpeed]. NaN maps to MaxSpeed.
func ClampSpeed(speed float64) float64 {
	switch {
	case math.IsNaN(speed):
		return MaxSpeed
	case speed < MinSpeed:
		return MinSpeed
	case speed > MaxSpeed:
		return MaxSpeed
	default:
		return speed
	}
}

var lookPath = exec.LookPath

// ResolveDevice maps "auto" (or empty) to cuda when an NVIDIA runtime is
// visible and cpu otherwise. Explicit devices pass through.
func ResolveDevice(device string) string {
	device = strings.ToLower(strings.TrimSpace(device))
	if device != "" && device != "auto" {
		return device
	}
	if os.Getenv("CUDA_VISIBLE_DEVICES") != "" {
		return "cuda"
	}
	if _, err := lookPath("nvidia-smi"); err == nil {
		return "cuda"
	}
	return "cpu"
}
