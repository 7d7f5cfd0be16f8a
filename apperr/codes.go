package apperr

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeNotAuthenticated Code = "NOT_AUTHENTICATED"
	CodePersistence      Code = "PERSISTENCE"
	CodeInvalidMessage   Code = "INVALID_MESSAGE"
	CodeNotAParticipant  Code = "NOT_A_PARTICIPANT"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeSelfRequest      Code = "SELF_REQUEST"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
)
