package display

import "image"

// Window sizing constants. The content area never shrinks below
// MinWidth x MinHeight; the padding accounts for window chrome.
const (
	MinWidth      = 300
	MinHeight     = 200
	PaddingWidth  = 16
	PaddingHeight = 56

	DefaultWidth  = 800
	DefaultHeight = 600
)

// FitSize returns the window size for an image of the given pixel size.
// Images larger than bounds are scaled down keeping their aspect ratio;
// smaller images are shown at their own size. A zero bound means no limit;
// a bound below the minimum window size is raised to it.
func FitSize(img, bounds image.Point) image.Point {
	if img.X <= 0 || img.Y <= 0 {
		return image.Pt(DefaultWidth, DefaultHeight)
	}

	if bounds.X > 0 && bounds.X < MinWidth+PaddingWidth {
		bounds.X = MinWidth + PaddingWidth
	}
	if bounds.Y > 0 && bounds.Y < MinHeight+PaddingHeight {
		bounds.Y = MinHeight + PaddingHeight
	}

	maxW := float64(bounds.X - PaddingWidth)
	maxH := float64(bounds.Y - PaddingHeight)

	w, h := float64(img.X), float64(img.Y)
	scale := 1.0
	if bounds.X > 0 && w > maxW {
		scale = maxW / w
	}
	if bounds.Y > 0 && h*scale > maxH {
		scale = maxH / h
	}
	w, h = w*scale, h*scale

	if w < MinWidth {
		w = MinWidth
	}
	if h < MinHeight {
		h = MinHeight
	}
	return image.Pt(int(w+0.5)+PaddingWidth, int(h+0.5)+PaddingHeight)
}
