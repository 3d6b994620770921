// Copyright 2025 Microsoft Corporation
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

package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var commitSHA = sync.OnceValue(func() string {
	version := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				version = setting.Value
				break
			}
		}
	}

	return version
})

// CommitSHA returns the VCS revision the binary was built from, or "unknown"
// for builds without VCS stamping.
func CommitSHA() string {
	return commitSHA()
}

// UserAgent returns the value sent in the User-Agent header of ARM requests.
// The <program>/<revision> format follows the Azure SDK guidelines for
// telemetry application IDs, truncated to 24 characters.
func UserAgent(program string) string {
	return firstN(fmt.Sprintf("%s/%s", program, CommitSHA()), 24)
}

func firstN(str string, n int) string {
	v := []rune(str)
	if n >= len(v) {
		return str
	}

	return string(v[:n])
}
