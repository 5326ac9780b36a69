package log

// Field keys shared by the packages that log stage and process activity.
const (
	FieldKeySweep     = "sweep"
	FieldKeyStage     = "stage"
	FieldKeyCandidate = "candidate"
	FieldKeyCommand   = "cmd"
	FieldKeyJob       = "job"
)

// Fields type, used to pass to `WithFields`.
type Fields map[string]any
