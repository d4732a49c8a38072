package feature

import (
	"fmt"
	"testing"
)

// TestSetFlag sets the feature flag to value and returns a function that
// restores the previous state. Meant to be deferred:
//
//	defer feature.TestSetFlag(t, feature.Flag, feature.ParallelEntropy, true)()
func TestSetFlag(t *testing.T, f *FlagSet, flag FlagName, value bool) func() {
	t.Helper()

	apply := func(v bool) {
		err := f.Apply(fmt.Sprintf("%s=%v", flag, v), func(msg string) {
			t.Fatalf("flag %v: unexpected warning: %v", flag, msg)
		})
		if err != nil {
			t.Fatalf("flag %v: %v", flag, err)
		}
	}

	previous := f.Enabled(flag)
	apply(value)

	return func() { apply(previous) }
}
