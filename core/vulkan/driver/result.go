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

import "fmt"

// Result is a VkResult. Non-success values implement error, so a Result can be
// returned directly and later recovered with errors.Cause.
type Result int32

const (
	Success                   = Result(0)
	NotReady                  = Result(1)
	Timeout                   = Result(2)
	Incomplete                = Result(5)
	Suboptimal                = Result(1000001003)
	ErrorOutOfHostMemory      = Result(-1)
	ErrorOutOfDeviceMemory    = Result(-2)
	ErrorInitializationFailed = Result(-3)
	ErrorDeviceLost           = Result(-4)
	ErrorMemoryMapFailed      = Result(-5)
	ErrorFeatureNotPresent    = Result(-8)
	ErrorTooManyObjects       = Result(-10)
	ErrorFormatNotSupported   = Result(-11)
	ErrorSurfaceLost          = Result(-1000000000)
	ErrorNativeWindowInUse    = Result(-1000000001)
	ErrorOutOfDate            = Result(-1000001004)
)

var resultNames = map[Result]string{
	Success:                   "VK_SUCCESS",
	NotReady:                  "VK_NOT_READY",
	Timeout:                   "VK_TIMEOUT",
	Incomplete:                "VK_INCOMPLETE",
	Suboptimal:                "VK_SUBOPTIMAL_KHR",
	ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	ErrorSurfaceLost:          "VK_ERROR_SURFACE_LOST_KHR",
	ErrorNativeWindowInUse:    "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	ErrorOutOfDate:            "VK_ERROR_OUT_OF_DATE_KHR",
}

func (r Result) String() string {
	if n, ok := resultNames[r]; ok {
		return n
	}
	return fmt.Sprintf("VkResult(%d)", int32(r))
}

func (r Result) Error() string { return r.String() }

// IsError returns true for the negative result codes.
func (r Result) IsError() bool { return r < 0 }

// Check returns nil for Success and r otherwise.
func Check(r Result) error {
	if r == Success {
		return nil
	}
	return r
}
