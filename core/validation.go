// Copyright 2025 Poiesic Systems
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

package core

import (
	"fmt"
	"strings"
)

// ValidateControl validates a Control according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Name must not be empty
//
// NOT validated (populated by the knowledge base):
//   - Embedding (empty until the control is embedded)
//   - Keywords (generated from Name when the catalog has none)
func ValidateControl(control *Control) error {
	if control == nil {
		return fmt.Errorf("%w: control is nil", ErrInvalidControl)
	}

	if strings.TrimSpace(control.ID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidControl, ErrEmptyControlID)
	}

	if strings.TrimSpace(control.Name) == "" {
		return fmt.Errorf("%w: %w (id %s)", ErrInvalidControl, ErrEmptyControlName, control.ID)
	}

	return nil
}

// ValidateScore checks that a score lies within [0,1].
func ValidateScore(score float64) bool {
	return score >= 0 && score <= 1
}
