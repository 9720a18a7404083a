// Package webcam provides a camera frame source backed by OpenCV (gocv).
// Build with -tags gocv to enable it; without the tag New reports ErrNoOpenCV.
package webcam
