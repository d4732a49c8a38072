package feature

// Flag is named such that checking for a feature uses `feature.Flag.Enabled(feature.ParallelEntropy)`.
var Flag = New()

// flag names are written in kebab-case
const (
	ParallelEntropy FlagName = "parallel-entropy"
)

func init() {
	Flag.SetFlags(map[FlagName]FlagDesc{
		ParallelEntropy: {Type: Beta, Description: "compute entropy histograms using multiple goroutines for large samples."},
	})
}
