package structure

import "image"

// Box is an axis-aligned bounding box in page pixel coordinates.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Right returns the x coordinate of the right edge.
func (b Box) Right() float64 { return b.X + b.W }

// Bottom returns the y coordinate of the bottom edge.
func (b Box) Bottom() float64 { return b.Y + b.H }

// Union returns the smallest box covering both boxes.
func (b Box) Union(other Box) Box {
	x0 := b.X
	if other.X < x0 {
		x0 = other.X
	}
	y0 := b.Y
	if other.Y < y0 {
		y0 = other.Y
	}
	x1 := b.Right()
	if other.Right() > x1 {
		x1 = other.Right()
	}
	y1 := b.Bottom()
	if other.Bottom() > y1 {
		y1 = other.Bottom()
	}
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Token is one recognized text fragment on the page, as produced by the
// external OCR collaborator. The analyzer only consumes token geometry
// and text; it never performs recognition itself.
type Token struct {
	Text string `json:"text"`
	Box  Box    `json:"box"`
}

// Page is the structural input for one scanned sheet: raster dimensions,
// the OCR token list, and optionally the decoded raster used later to cut
// region images for the model providers.
type Page struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Tokens []Token `json:"tokens"`

	// Raster is optional; region grading needs it, pure structure
	// analysis does not.
	Raster image.Image `json:"-"`
}

// Region is one detected question area: bounding box, column, the
// question number read from its marker, and the point value printed in
// its header when present. Immutable after analysis.
type Region struct {
	ID             string  `json:"id"`
	Box            Box     `json:"box"`
	Column         int     `json:"column"`
	QuestionNumber string  `json:"question_number,omitempty"`
	Points         float64 `json:"points,omitempty"`
	HasPoints      bool    `json:"has_points"`

	// LowConfidence marks regions produced by the degenerate whole-column
	// fallback. Downstream confidence is capped when set.
	LowConfidence bool `json:"low_confidence"`
}
