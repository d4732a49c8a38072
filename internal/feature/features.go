package feature

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type phase string
type FlagName string

const (
	// Alpha features are disabled by default and may change or vanish between
	// ttare versions without a compatibility path.
	Alpha phase = "alpha"
	// Beta features are enabled by default. They may still change, but
	// incompatible changes should be avoided.
	Beta phase = "beta"
	// Stable features are always enabled.
	Stable phase = "stable"
	// Deprecated features are always disabled.
	Deprecated phase = "deprecated"
)

func (p phase) enabledByDefault() bool {
	switch p {
	case Alpha, Deprecated:
		return false
	case Beta, Stable:
		return true
	default:
		panic("unknown feature phase")
	}
}

type FlagDesc struct {
	Type        phase
	Description string
}

type FlagSet struct {
	flags   map[FlagName]*FlagDesc
	enabled map[FlagName]bool
}

func New() *FlagSet {
	return &FlagSet{}
}

// SetFlags replaces the registered flags and resets every flag to the default
// of its phase.
func (f *FlagSet) SetFlags(flags map[FlagName]FlagDesc) {
	f.flags = map[FlagName]*FlagDesc{}
	f.enabled = map[FlagName]bool{}

	for name, flag := range flags {
		desc := flag
		f.flags[name] = &desc
		f.enabled[name] = desc.Type.enabledByDefault()
	}
}

// Apply parses a comma-separated list of `name[=bool]` assignments, the format
// of the TTARE_FEATURES environment variable. Assignments to stable or
// deprecated flags do not change their state and only call logWarning.
func (f *FlagSet) Apply(flags string, logWarning func(string)) error {
	if flags == "" {
		return nil
	}

	selection := make(map[string]bool)

	for _, assignment := range strings.Split(flags, ",") {
		name, value, hasValue := strings.Cut(assignment, "=")
		if !hasValue {
			value = "true"
		}

		isEnabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("failed to parse value %q for feature flag %v: %w", value, name, err)
		}

		selection[name] = isEnabled
	}

	for name, value := range selection {
		fname := FlagName(name)
		flag := f.flags[fname]
		if flag == nil {
			return fmt.Errorf("unknown feature flag %q", name)
		}

		switch flag.Type {
		case Alpha, Beta:
			f.enabled[fname] = value
		case Stable:
			logWarning(fmt.Sprintf("feature flag %q is always enabled and will be removed in a future release", fname))
		case Deprecated:
			logWarning(fmt.Sprintf("feature flag %q is always disabled and will be removed in a future release", fname))
		default:
			panic("unknown feature phase")
		}
	}

	return nil
}

// Enabled returns the current state of the flag. The flag must have been
// registered via SetFlags.
func (f *FlagSet) Enabled(name FlagName) bool {
	isEnabled, ok := f.enabled[name]
	if !ok {
		panic(fmt.Sprintf("unknown feature flag %v", name))
	}

	return isEnabled
}

// Help describes a feature flag for `ttare features`.
type Help struct {
	Name        string
	Type        string
	Default     bool
	Description string
}

// List returns a description of all flags, sorted by name.
func (f *FlagSet) List() []Help {
	var help []Help

	for name, flag := range f.flags {
		help = append(help, Help{
			Name:        string(name),
			Type:        string(flag.Type),
			Default:     flag.Type.enabledByDefault(),
			Description: flag.Description,
		})
	}

	sort.Slice(help, func(i, j int) bool {
		return help[i].Name < help[j].Name
	})

	return help
}
