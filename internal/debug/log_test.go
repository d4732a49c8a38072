package debug_test

import (
	"testing"

	"github.com/ttare/ttare/internal/debug"
)

func BenchmarkLogStatic(b *testing.B) {
	for i := 0; i < b.N; i++ {
		debug.Log("Static string")
	}
}

func BenchmarkLogFormatted(b *testing.B) {
	path := "some/archive/member.txt"

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		debug.Log("member: %v", path)
	}
}
