package stream

import "strings"

// rewriteManifest routes every segment URI in an m3u8 playlist through
// rewrite. Comment and tag lines pass through untouched; internal cache file
// paths are never exposed to clients.
func rewriteManifest(content string, rewrite func(segmentName string) string) string {
	if rewrite == nil {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines[i] = rewrite(trimmed)
	}
	return strings.Join(lines, "\n")
}

// synthesizeManifest builds a minimal one-segment playlist for the case
// where the builder has produced a segment but not yet the manifest. No
// ENDLIST tag: the stream is still growing.
func synthesizeManifest(segmentName string) string {
	return strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXT-X-TARGETDURATION:4",
		"#EXT-X-MEDIA-SEQUENCE:0",
		"#EXTINF:4.0,",
		segmentName,
		"",
	}, "\n")
}
