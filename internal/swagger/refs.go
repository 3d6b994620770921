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

import (
	"strings"

	"github.com/tidwall/gjson"
)

// resolveRef walks a local JSON pointer such as "#/definitions/Message".
// Segments are matched literally against object keys, sidestepping gjson
// path metacharacters in definition names. Only intra-document pointers are
// supported; anything else reports no result.
func resolveRef(root gjson.Result, ref string) gjson.Result {
	if !strings.HasPrefix(ref, "#/") {
		return gjson.Result{}
	}

	current := root
	for _, segment := range strings.Split(ref[2:], "/") {
		if !current.IsObject() {
			return gjson.Result{}
		}

		// RFC 6901 escaping, in the mandated order.
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")

		var next gjson.Result
		current.ForEach(func(key, value gjson.Result) bool {
			if key.String() == segment {
				next = value
				return false
			}
			return true
		})
		if !next.Exists() {
			return gjson.Result{}
		}
		current = next
	}
	return current
}

// resolveSchema follows a schema's $ref when present; unresolvable refs fall
// back to the original node so the caller degrades gracefully.
func resolveSchema(root, schema gjson.Result) gjson.Result {
	ref := schema.Get("$ref")
	if !ref.Exists() {
		return schema
	}
	if resolved := resolveRef(root, ref.String()); resolved.Exists() {
		return resolved
	}
	return schema
}
