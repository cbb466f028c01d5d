package pipeline

// State is the stage an invocation is in
type State int

const (
	StateIdle State = iota
	StateDetectingSource
	StateDetectingTarget
	StateAligning
	StateMasking
	StateCompositing
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateDetectingSource: "detecting-source",
	StateDetectingTarget: "detecting-target",
	StateAligning:        "aligning",
	StateMasking:         "masking",
	StateCompositing:     "compositing",
	StateDone:            "done",
	StateFailed:          "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Progress milestones, in percent
const (
	ProgressSourceStarted  = 10
	ProgressSourceDetected = 20
	ProgressTargetDetected = 30
	ProgressAligned        = 40
	ProgressMasked         = 60
	ProgressComposited     = 80
	ProgressDone           = 100
)
