// Package opencv is the OpenCV backend, built on gocv. The adapter needs the
// "gocv" build tag and OpenCV 4 installed; without them Load reports the
// backend as unavailable.
package opencv

const (
	Name     = "opencv"
	BuildTag = "gocv"
)
