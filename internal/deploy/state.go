package deploy

// State is a step of the deploy sequence
type State int

const (
	StateInitialized State = iota
	StateConfigMerged
	StateRuntimeVendored
	StatePackaged
	StateReleased
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConfigMerged:
		return "config-merged"
	case StateRuntimeVendored:
		return "runtime-vendored"
	case StatePackaged:
		return "packaged"
	case StateReleased:
		return "released"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
