package pipeline

type state int

const (
	stateCacheCheck state = iota
	stateCacheHit
	stateLiveAttempt
	stateLiveFailed
	stateCacheFallback
	stateHeuristicFallback
	stateDone
)

var stateNames = [...]string{
	stateCacheCheck:        "cache_check",
	stateCacheHit:          "cache_hit",
	stateLiveAttempt:       "live_attempt",
	stateLiveFailed:        "live_failed",
	stateCacheFallback:     "cache_fallback",
	stateHeuristicFallback: "heuristic_fallback",
	stateDone:              "done",
}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
