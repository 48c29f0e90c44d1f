package lifecycle

// State 是代际状态机的状态。
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateSuperseded State = "superseded"
)

// transitions 列出每个状态允许进入的下一状态。
// installing → new 表示安装失败，宿主可以整体重试；activating → waiting 表示清理失败。
var transitions = map[State][]State{
	StateNew:        {StateInstalling, StateSuperseded},
	StateInstalling: {StateWaiting, StateNew},
	StateWaiting:    {StateActivating, StateSuperseded},
	StateActivating: {StateActive, StateWaiting},
	StateActive:     {StateSuperseded},
}

// CanTransition 判断 from → to 是否合法。
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
