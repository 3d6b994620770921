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

package binder

import (
	"strings"
	"unicode"
)

// ToolName derives the external tool name for an operation:
// "<apiName>_<snake-cased operationId>", sanitized to the tool naming
// pattern. Pure function of its arguments.
func ToolName(apiName, operationID string) string {
	return SanitizeKey(apiName + "_" + snakeCase(operationID))
}

// snakeCase lowercases an UpperCamelCase identifier with underscores at word
// boundaries: before a capital that follows a lowercase letter or digit, and
// before the last capital of an acronym run when a lowercase letter follows.
// SendEmail → send_email, GetAllTeams → get_all_teams,
// V4CalendarPostItem → v4_calendar_post_item.
func snakeCase(identifier string) string {
	runes := []rune(identifier)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/4)

	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			acronymTail := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || acronymTail {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}
