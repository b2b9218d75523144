// Package vpath parses the virtual path syntax used by all boundary
// operations. A virtual path addresses either the caller's own tree or,
// via the "@shared/..." prefix, another user's tree under a grant.
//
//	"" or "foo/bar"              -> owner = caller, rel = path
//	"@shared"                    -> virtual listing of inbound share senders
//	"@shared/{fromUser}"         -> root of that sender's granted subtree
//	"@shared/{fromUser}/sub/dir" -> within that sender's granted subtree
//
// No filesystem access happens here; this is pure string parsing.
package vpath

import "strings"

// VirtualRoot is the sentinel owner returned for the "@shared" root itself.
const VirtualRoot = "__virtual__"

const sharedPrefix = "@shared"

// Normalize unifies separators and strips leading/trailing slashes.
func Normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.Trim(path, "/")
}

// Resolve maps (caller, virtualPath) to (effectiveOwner, relativePath, shared).
// Malformed input after the "@shared/" prefix degenerates to rel "", meaning
// the sharer's declared root.
func Resolve(caller, path string) (owner, rel string, shared bool) {
	path = Normalize(path)
	parts := splitSegments(path)
	if len(parts) == 0 || !strings.EqualFold(parts[0], sharedPrefix) {
		return caller, path, false
	}
	if len(parts) == 1 {
		return VirtualRoot, "", true
	}
	return parts[1], strings.Join(parts[2:], "/"), true
}

func splitSegments(path string) []string {
	if path == "" {
		return nil
	}
	raw := strings.Split(path, "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
