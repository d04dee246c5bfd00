package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twoears/scenetcn/train"
)

// RunName derives the run name from the refined parameters. Runs stored under
// a hyperparameter search folder (path containing "hyper_main" or
// "hyper_fine") use the short name, all other runs the long name.
func RunName(p train.RunParams) string {
	short := fmt.Sprintf("n%d_dr%s_ks%d_hl%d_lr%s",
		p.FeatureMaps, formatFloat(p.DropoutRate), p.KernelSize, p.HistoryLength, formatFloat(p.LearningRate))
	long := short + fmt.Sprintf("_nwn%t_bs%d_bl%d_me%d_es%d_gc%s_sb%d_bbm%t_bbs%d",
		p.NoWeightNorm, p.BatchSize, p.BatchLength, p.MaxEpochs, p.EarlyStop, formatFloat(p.GradientClip),
		p.SceneInstanceBufSize, p.BatchBufMultiProc, p.BatchBufSize)
	vf := fmt.Sprintf("_vf%d", p.ValidFold)

	if strings.Contains(p.Path, "hyper_main") || strings.Contains(p.Path, "hyper_fine") {
		return short + vf
	}
	return long + vf
}

// formatFloat prints the shortest representation, keeping a decimal point on
// integral values (0.0, 1.0).
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
