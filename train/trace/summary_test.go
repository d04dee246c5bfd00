package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilTrace_ReturnsZeroSummary(t *testing.T) {
	summary := Summarize(nil)
	assert.Equal(t, 0, summary.TotalWindows)
	assert.Empty(t, summary.WindowsPerFile)
}

func TestSummarize_CountsWindowsAndFramesPerFile(t *testing.T) {
	// GIVEN two files with disjoint windows
	lt := NewLoaderTrace()
	lt.Record(WindowRecord{File: "a", Offset: 0, Length: 10})
	lt.Record(WindowRecord{File: "b", Offset: 0, Length: 10})
	lt.Record(WindowRecord{File: "a", Offset: 10, Length: 10})

	// WHEN summarized
	summary := Summarize(lt)

	// THEN windows and frames are attributed per file and nothing overlaps
	assert.Equal(t, 3, summary.TotalWindows)
	assert.Equal(t, 2, summary.UniqueFiles)
	assert.Equal(t, 2, summary.WindowsPerFile["a"])
	assert.Equal(t, 20, summary.FramesPerFile["a"])
	assert.Equal(t, 0, summary.Overlaps)
}

func TestSummarize_OverlappingWindows_Counted(t *testing.T) {
	// GIVEN a second window that starts inside the first one
	lt := NewLoaderTrace()
	lt.Record(WindowRecord{File: "a", Offset: 5, Length: 10})
	lt.Record(WindowRecord{File: "a", Offset: 0, Length: 10})

	// THEN the overlap is detected regardless of recording order
	assert.Equal(t, 1, Summarize(lt).Overlaps)
}
