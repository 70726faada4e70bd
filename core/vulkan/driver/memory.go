// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package driver

import "github.com/google/gapid/core/fault"

// ErrNoMemoryType is returned when no memory type satisfies a request.
const ErrNoMemoryType = fault.Const("No suitable memory type")

// FindMemoryType returns the index of the first memory type that is allowed by
// typeBits and has all of the required property flags.
func FindMemoryType(props MemoryProperties, typeBits uint32, required MemoryProperty) (uint32, error) {
	for i, t := range props.Types {
		if i >= 32 {
			break
		}
		if typeBits&(1<<uint(i)) != 0 && t.PropertyFlags&required == required {
			return uint32(i), nil
		}
	}
	return 0, ErrNoMemoryType
}
