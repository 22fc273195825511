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

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cascadehq/cascade/pkg/pipeline"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definition.yaml> [more.yaml...]",
		Short: "Validate pipeline definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					cmd.Printf("✗ %s: %v\n", path, err)
					failed++
					continue
				}
				def, err := pipeline.Parse(data)
				if err != nil {
					cmd.Printf("✗ %s: %v\n", path, err)
					failed++
					continue
				}
				cmd.Printf("✓ %s (%s, %d steps)\n", path, def.Name, len(def.Steps))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(args))
			}
			return nil
		},
	}
}
