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

import "errors"

// Domain validation errors
var (
	// ErrInvalidControl indicates a Control failed validation.
	ErrInvalidControl = errors.New("invalid control")

	// ErrEmptyControlID indicates the control ID field is empty.
	ErrEmptyControlID = errors.New("control id cannot be empty")

	// ErrEmptyControlName indicates the control Name field is empty.
	ErrEmptyControlName = errors.New("control name cannot be empty")

	// ErrDimensionMismatch indicates two vectors of different lengths were compared.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
