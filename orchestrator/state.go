package orchestrator

// State is the step of the sort cycle the orchestrator is in
type State int

const (
	StateIdle State = iota
	StateLightingAlert
	StateClassifying
	StateRouting
	StateAwaitingPlacement
	StateDispensing
	StateResetting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateLightingAlert:
		return "lighting_alert"
	case StateClassifying:
		return "classifying"
	case StateRouting:
		return "routing"
	case StateAwaitingPlacement:
		return "awaiting_placement"
	case StateDispensing:
		return "dispensing"
	case StateResetting:
		return "resetting"
	case StateStopped:
		return "stopped"
	default:
		fallthrough
	case StateIdle:
		return "idle"
	}
}
