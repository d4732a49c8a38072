//go:build !debug && !profile
// +build !debug,!profile

package main

import "github.com/spf13/cobra"

// profiling flags and hooks are only compiled in with the debug or profile
// build tags
func registerProfiling(_ *cobra.Command) {}
