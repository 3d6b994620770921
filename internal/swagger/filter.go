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

package swagger

import "strings"

// Filter drops operations that must not surface as tools and collapses
// versioned families to their newest revision. Connector schemas accumulate
// SendMessageV2, SendMessageV3 and so on; only the newest revision of each
// family should surface. Survivors keep their input order.
func Filter(operations []Operation) []Operation {
	visible := make([]Operation, 0, len(operations))
	for _, op := range operations {
		if op.Visibility == VisibilityInternal {
			continue
		}
		if op.IsTrigger {
			continue
		}
		// $subscriptions paths manage webhook registrations, not actions.
		if strings.Contains(op.Path, "$subscriptions") {
			continue
		}
		visible = append(visible, op)
	}

	// Index of the highest revision per family; first seen wins ties.
	newest := make(map[string]int)
	for i, op := range visible {
		family := familyOf(op)
		if family == "" {
			continue
		}
		best, seen := newest[family]
		if !seen || op.Annotation.Revision > visible[best].Annotation.Revision {
			newest[family] = i
		}
	}

	filtered := make([]Operation, 0, len(visible))
	for i, op := range visible {
		if family := familyOf(op); family != "" {
			if newest[family] != i {
				continue
			}
		} else if op.Deprecated {
			continue
		}
		filtered = append(filtered, op)
	}

	return filtered
}

func familyOf(op Operation) string {
	if op.Annotation == nil {
		return ""
	}
	return op.Annotation.Family
}
