package trace

import "sort"

// TraceSummary aggregates statistics from a LoaderTrace.
type TraceSummary struct {
	TotalWindows   int
	UniqueFiles    int
	WindowsPerFile map[string]int // file → windows drawn
	FramesPerFile  map[string]int // file → frames served
	Overlaps       int            // windows sharing a frame with an earlier window of the same file
}

// Summarize computes aggregate statistics from a LoaderTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(lt *LoaderTrace) *TraceSummary {
	summary := &TraceSummary{
		WindowsPerFile: make(map[string]int),
		FramesPerFile:  make(map[string]int),
	}
	if lt == nil {
		return summary
	}

	byFile := make(map[string][]WindowRecord)
	for _, w := range lt.Windows() {
		summary.TotalWindows++
		summary.WindowsPerFile[w.File]++
		summary.FramesPerFile[w.File] += w.Length
		byFile[w.File] = append(byFile[w.File], w)
	}
	for _, ws := range byFile {
		sort.Slice(ws, func(i, j int) bool { return ws[i].Offset < ws[j].Offset })
		for i := 1; i < len(ws); i++ {
			if ws[i].Offset < ws[i-1].End() {
				summary.Overlaps++
			}
		}
	}
	summary.UniqueFiles = len(summary.WindowsPerFile)

	return summary
}
