package event

// ViewerJoined is emitted when a session completes its hello and becomes
// a registered viewer.
type ViewerJoined struct {
	ViewerID uint64
	Name     string
}

// ViewerLeft is emitted once the viewer's session is gone and the engine
// has forgotten it.
type ViewerLeft struct {
	ViewerID uint64
}
