package domain

// TrafficLight is a three-level status of a metric against static thresholds.
type TrafficLight string

const (
	TrafficGreen TrafficLight = "green"
	TrafficAmber TrafficLight = "amber"
	TrafficRed   TrafficLight = "red"
)

// Threshold bounds for a single metric. Values at or below GreenMax are green,
// at or below AmberMax amber, red otherwise.
type Threshold struct {
	GreenMax float64 `json:"green_max"`
	AmberMax float64 `json:"amber_max"`
}

// RuleTable maps metric names to thresholds. Read-only once loaded.
type RuleTable struct {
	Version string               `json:"version"`
	Traffic map[string]Threshold `json:"traffic"`
}

// Status classifies value for metric. Unknown metrics are green.
func (t RuleTable) Status(metric string, value float64) TrafficLight {
	th, ok := t.Traffic[metric]
	if !ok {
		return TrafficGreen
	}
	switch {
	case value <= th.GreenMax:
		return TrafficGreen
	case value <= th.AmberMax:
		return TrafficAmber
	default:
		return TrafficRed
	}
}

// Severity of a red flag.
type Severity string

const (
	SeverityUrgent  Severity = "urgent"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// RedFlag is a clinical value that warrants prompt attention.
type RedFlag struct {
	Metric   string   `json:"metric"`
	Value    float64  `json:"value"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}
