package types

// Challenge: одна реальная задача для игрока. Неизменяема после выбора.
type Challenge struct {
	ID            string         `json:"id" yaml:"id"`
	Title         string         `json:"title" yaml:"title"`
	Description   string         `json:"description" yaml:"description"`
	Points        int            `json:"points" yaml:"points"`
	LocationCheck *LocationCheck `json:"locationCheck,omitempty" yaml:"location_check,omitempty"`
}

// LocationCheck: требуемая точка и радиус в метрах.
type LocationCheck struct {
	Label        string  `json:"label" yaml:"label"`
	Lat          float64 `json:"lat" yaml:"lat"`
	Lng          float64 `json:"lng" yaml:"lng"`
	RadiusMeters float64 `json:"radiusMeters" yaml:"radius_meters"`
}

type LocationStatus string

const (
	LocationAvailable   LocationStatus = "available"
	LocationSkipped     LocationStatus = "skipped"
	LocationDenied      LocationStatus = "denied"
	LocationUnsupported LocationStatus = "unsupported"
	LocationError       LocationStatus = "error"
)

// LocationSnapshot снимается один раз за попытку и никогда не сохраняется.
type LocationSnapshot struct {
	Status    LocationStatus `json:"status"`
	Latitude  *float64       `json:"latitude,omitempty"`
	Longitude *float64       `json:"longitude,omitempty"`
	Accuracy  *float64       `json:"accuracy,omitempty"`
	Message   string         `json:"message,omitempty"`
}
