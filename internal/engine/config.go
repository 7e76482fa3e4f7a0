package engine

// Config carries the per-match field constants clients need to render
// and to interpret coordinates. Serialized as-is by the conf endpoint.
type Config struct {
	CanvasWidth  float64 `json:"canvas_width"`
	CanvasHeight float64 `json:"canvas_height"`
	PaddleWidth  float64 `json:"paddle_width"`
	PaddleHeight float64 `json:"paddle_height"`
	PaddleMargin float64 `json:"-"`
	PaddleSpeed  float64 `json:"-"`
	BallSize     float64 `json:"ball_size"`
	ServeSpeed   float64 `json:"-"`
	WinPoint     int     `json:"win_point"`
}

func DefaultConfig() Config {
	return Config{
		CanvasWidth:  800,
		CanvasHeight: 600,
		PaddleWidth:  10,
		PaddleHeight: 100,
		PaddleMargin: 20,
		PaddleSpeed:  300,
		BallSize:     10,
		ServeSpeed:   250,
		WinPoint:     5,
	}
}
