package store

import (
	"bytes"
	"fmt"
)

// merge3 performs a whole-file three-way merge of base/ours/theirs: if both
// sides are identical, or only one side differs from base, that side wins;
// if both sides changed the file differently, the result is one standard
// conflict-marker block holding both full versions. Changes to different
// lines of the same file on both sides are not combined. This is
// hand-written rather than ported from a library: the retrieved pack's
// modules/diff3 contained only an orphaned test file with no implementation
// to adapt.
func merge3(base, ours, theirs []byte) (merged []byte, conflict bool) {
	if bytes.Equal(ours, theirs) {
		return ours, false
	}
	if bytes.Equal(base, ours) {
		return theirs, false
	}
	if bytes.Equal(base, theirs) {
		return ours, false
	}

	baseLines := splitLines(base)
	ourLines := splitLines(ours)
	theirLines := splitLines(theirs)

	oursChanged := !linesEqual(baseLines, ourLines)
	theirsChanged := !linesEqual(baseLines, theirLines)
	if oursChanged && theirsChanged {
		var out bytes.Buffer
		out.WriteString("<<<<<<< ours\n")
		for _, l := range ourLines {
			out.Write(l)
		}
		out.WriteString("=======\n")
		for _, l := range theirLines {
			out.Write(l)
		}
		out.WriteString(">>>>>>> theirs\n")
		return out.Bytes(), true
	}
	return theirs, false
}

func splitLines(b []byte) [][]byte {
	var lines [][]byte
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i == -1 {
			lines = append(lines, b)
			break
		}
		lines = append(lines, b[:i+1])
		b = b[i+1:]
	}
	return lines
}

func linesEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

var errBinaryConflict = fmt.Errorf("store: binary content conflict")
