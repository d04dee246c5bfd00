// Package trace provides window-level recording of batch loader activity.
// The package does not import train; it holds plain data types.
package trace

// WindowRecord captures one batch row drawn from a scene instance.
type WindowRecord struct {
	File   string
	Scene  int
	Offset int // first frame of the window
	Length int
	Batch  int // batch index within the producing loader
	Row    int
}

// End returns the frame after the last frame of the window.
func (r WindowRecord) End() int {
	return r.Offset + r.Length
}
