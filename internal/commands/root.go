// Copyright 2026 The Cascade Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package commands implements the cascade CLI: loading pipeline
// definitions from YAML, running them with safety limits and tracing,
// and validating definition files.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the cascade root command with all subcommands
// attached.
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	root := &cobra.Command{
		Use:   "cascade",
		Short: "Run and inspect nested data pipelines",
		Long: `Cascade executes YAML pipeline definitions with nesting safety limits,
execution tracing, and performance analysis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(NewRunCommand())
	root.AddCommand(NewValidateCommand())
	root.AddCommand(NewVersionCommand(version, commit, buildDate))
	return root
}
