package browser

// TabInfo describes an open browser tab.
type TabInfo struct {
	TargetID string `json:"targetId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}

// PageInfo is the location of the document a session is looking at.
type PageInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// NodeInfo is the part of an element the clickable checks look at.
type NodeInfo struct {
	Tag             string            `json:"tag"`             // lower-case tag name
	Role            string            `json:"role,omitempty"`  // role attribute
	Class           string            `json:"class,omitempty"` // raw class attribute
	Data            map[string]string `json:"data,omitempty"`  // data-* attributes, name → value
	HasClickHandler bool              `json:"hasClickHandler,omitempty"`
	Cursor          string            `json:"cursor,omitempty"` // computed cursor style
	Text            string            `json:"text,omitempty"`   // trimmed text content, truncated
}

// Node is a located element. Handle is owned by the driver that produced it and
// is only valid for the step that located it.
type Node struct {
	NodeInfo
	Handle any
}

// Box is an element's bounding box in viewport coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the middle point of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Viewport is a device metrics override.
type Viewport struct {
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor"`
	IsMobile          bool    `json:"isMobile"`
	HasTouch          bool    `json:"hasTouch"`
	IsLandscape       bool    `json:"isLandscape"`
}

// MouseButton names a pointer button.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonMiddle MouseButton = "middle"
	ButtonRight  MouseButton = "right"
)

// MouseEventType is the kind of synthetic pointer event.
type MouseEventType string

const (
	MousePressed  MouseEventType = "mousePressed"
	MouseReleased MouseEventType = "mouseReleased"
	MouseMoved    MouseEventType = "mouseMoved"
	MouseWheel    MouseEventType = "mouseWheel"
)

// MouseEvent is a trusted pointer event dispatched through the debug session.
type MouseEvent struct {
	Type       MouseEventType
	X, Y       float64
	Button     MouseButton
	ClickCount int
	DeltaX     float64
	DeltaY     float64
}

// KeyEventType is the kind of synthetic keyboard event.
type KeyEventType string

const (
	KeyDown KeyEventType = "keyDown"
	KeyUp   KeyEventType = "keyUp"
)

// OutlineOptions controls accessibility outline generation.
type OutlineOptions struct {
	Interactive bool // only include interactive elements
	MaxDepth    int  // 0 = unlimited
	Compact     bool // remove unnamed structural elements
	MaxChars    int  // truncate output (default 8000)
	Limit       int  // max AX nodes to process (default 500)
}

// DefaultOutlineOptions returns sensible defaults.
func DefaultOutlineOptions() OutlineOptions {
	return OutlineOptions{
		MaxChars: 8000,
		Limit:    500,
	}
}

// Outline is an indented accessibility tree in which every actionable node is
// annotated with the aria/ selector a script can use to reach it.
type Outline struct {
	Text      string       `json:"text"`
	Selectors []string     `json:"selectors"`
	Page      PageInfo     `json:"page"`
	TargetID  string       `json:"targetId"`
	Stats     OutlineStats `json:"stats"`
	Truncated bool         `json:"truncated,omitempty"`
}

// OutlineStats contains metrics about an outline.
type OutlineStats struct {
	Lines       int `json:"lines"`
	Chars       int `json:"chars"`
	Interactive int `json:"interactive"`
	Ambiguous   int `json:"ambiguous"`
}

// StatusInfo describes the current browser connection.
type StatusInfo struct {
	Connected       bool   `json:"connected"`
	Tabs            int    `json:"tabs"`
	ProtocolVersion string `json:"protocolVersion,omitempty"`
	Product         string `json:"product,omitempty"`
}
