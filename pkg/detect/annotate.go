package detect

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var annotateColor = color.RGBA{0, 255, 0, 0}

// AnnotateJPEG draws detection boxes and labels onto a JPEG frame and
// returns the re-encoded image. Used for the dashboard preview.
func AnnotateJPEG(jpeg []byte, dets []Detection) ([]byte, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	Annotate(&img, dets)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Annotate draws detection boxes and labels onto the Mat in place.
func Annotate(img *gocv.Mat, dets []Detection) {
	w := float64(img.Cols())
	h := float64(img.Rows())

	for _, d := range dets {
		rect := image.Rect(
			int(d.Box.X*w),
			int(d.Box.Y*h),
			int((d.Box.X+d.Box.W)*w),
			int((d.Box.Y+d.Box.H)*h),
		)
		gocv.Rectangle(img, rect, annotateColor, 2)

		label := fmt.Sprintf("%s %.1fm (%.2f)", d.Label, d.Distance, d.Confidence)
		org := image.Pt(rect.Min.X, rect.Min.Y-10)
		if org.Y < 12 {
			org.Y = rect.Min.Y + 14
		}
		gocv.PutText(img, label, org, gocv.FontHersheySimplex, 0.5, annotateColor, 2)
	}
}
