package route

// Window is the time-of-day dependent route direction.
type Window string

const (
	WindowOutbound Window = "outbound"
	WindowReturn   Window = "return"
)

// Stop is one named point on a route, ordered along the direction of travel.
type Stop struct {
	Name string  `yaml:"name" validate:"required"`
	Lat  float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

// Leg is the ordered stop sequence for one directional window.
type Leg struct {
	Route string `yaml:"route" validate:"required"`
	Stops []Stop `yaml:"stops" validate:"min=2,dive"`
}

// Definition holds both directional legs for one bus.
type Definition struct {
	BusID     string `yaml:"busId" validate:"required"`
	BusNumber string `yaml:"busNumber"`
	Driver    string `yaml:"driver"`
	Outbound  Leg    `yaml:"outbound" validate:"required"`
	Return    Leg    `yaml:"return" validate:"required"`
}

// Progress is the result of matching a coordinate onto a directional leg.
type Progress struct {
	CurrentStop            string  `json:"currentStop"`
	NextStop               string  `json:"nextStop"`
	ProgressPercent        float64 `json:"progressPercent"`
	DistanceToCurrentStopM float64 `json:"distanceToCurrentStopMeters"`
	DistanceToNextStopM    float64 `json:"distanceToNextStopMeters"`
	Route                  string  `json:"route"`
	OffRoute               bool    `json:"offRoute"`
}
