package protocol

import "encoding/json"

// Wire event names. These are frozen for client compatibility; renaming any of
// them is a breaking protocol change.
const (
	EventJoinGame      = "join-game"
	EventConnectionAck = "connection-ack"
	EventStateSync     = "game:state-sync"
	EventChangeSlide   = "teacher:change-slide"
	EventChangeMode    = "teacher:change-mode"
	EventCloseAnswer   = "teacher:close-answer"
	EventSubmitAnswer  = "student:submit-answer"
	EventAnswerSaved   = "student:answer-saved"
	EventShareAnswer   = "teacher:share-answer"
	EventRevealCorrect = "teacher:reveal-correct"
	EventAnswerUpdated = "game:answer-updated"
	EventLeaveGame     = "leave-game"
	EventError         = "error"
)

// Role identifies what a connection is allowed to do inside a game. The
// projector display reuses RoleStudent on the wire; it is not a third role.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// SlideMode is the pedagogical phase of a single slide. A slide that has never
// had a mode set is represented by a nil *SlideMode in snapshots and by a NULL
// column in the durable store.
type SlideMode string

const (
	ModeView   SlideMode = "view"
	ModeAnswer SlideMode = "answer"
	ModeResult SlideMode = "result"
)

// Valid reports whether m is one of the closed set of modes.
func (m SlideMode) Valid() bool {
	switch m {
	case ModeView, ModeAnswer, ModeResult:
		return true
	}
	return false
}

// Error codes delivered on the "error" event.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInvalidPayload  = "INVALID_PAYLOAD"
	CodeConnectionError = "CONNECTION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeReconnectFailed = "RECONNECT_FAILED"
)

// genericCodes maps each inbound command to the code used when its handler
// fails unexpectedly.
var genericCodes = map[string]string{
	EventJoinGame:      "JOIN_GAME_ERROR",
	EventLeaveGame:     "LEAVE_GAME_ERROR",
	EventChangeSlide:   "CHANGE_SLIDE_ERROR",
	EventChangeMode:    "CHANGE_MODE_ERROR",
	EventCloseAnswer:   "CLOSE_ANSWER_ERROR",
	EventSubmitAnswer:  "SUBMIT_ANSWER_ERROR",
	EventShareAnswer:   "SHARE_ANSWER_ERROR",
	EventRevealCorrect: "REVEAL_CORRECT_ERROR",
}

// GenericErrorCode returns the per-command internal-failure code for an inbound
// event, or "INTERNAL_ERROR" for events it does not know.
func GenericErrorCode(event string) string {
	if code, ok := genericCodes[event]; ok {
		return code
	}
	return "INTERNAL_ERROR"
}

// Envelope is the outer frame of every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Stats is the participant summary attached to snapshots and answer
// notifications. TotalStudents counts distinct students seen by the session
// since it was hydrated; ConnectedStudents and ConnectedTeachers count live
// bindings.
type Stats struct {
	TotalStudents     int `json:"totalStudents"`
	ConnectedStudents int `json:"connectedStudents"`
	ConnectedTeachers int `json:"connectedTeachers"`
}

// JoinGame registers the calling connection as a participant.
type JoinGame struct {
	GameID   int64  `json:"gameId" validate:"required"`
	Role     Role   `json:"role" validate:"required,oneof=teacher student"`
	UserID   int64  `json:"userId" validate:"required"`
	UserName string `json:"userName,omitempty"`
}

// ConnectionAck is the full resync snapshot sent to a joining connection only.
type ConnectionAck struct {
	Success        bool                 `json:"success"`
	GameID         int64                `json:"gameId"`
	Role           Role                 `json:"role"`
	SlideStates    map[int64]*SlideMode `json:"slideStates"`
	CurrentSlideID int64                `json:"currentSlideId"`
	Stats          Stats                `json:"stats"`
}

// StateSync is broadcast to a whole room after membership changes.
type StateSync struct {
	GameID      int64                `json:"gameId"`
	SlideStates map[int64]*SlideMode `json:"slideStates"`
	Stats       Stats                `json:"stats"`
}

// ChangeSlide moves the game's current-slide pointer. It carries no mode
// information; mode is per-slide and independent of which slide is current.
type ChangeSlide struct {
	GameID     int64 `json:"gameId" validate:"required"`
	SlideID    int64 `json:"slideId" validate:"required"`
	SlideIndex int   `json:"slideIndex"`
}

// ChangeMode sets one slide's interaction mode.
type ChangeMode struct {
	GameID  int64     `json:"gameId" validate:"required"`
	SlideID int64     `json:"slideId" validate:"required"`
	Mode    SlideMode `json:"mode" validate:"required,oneof=view answer result"`
}

// CloseAnswer forces a slide's mode to result.
type CloseAnswer struct {
	GameID  int64 `json:"gameId" validate:"required"`
	SlideID int64 `json:"slideId" validate:"required"`
}

// SubmitAnswer carries a student's answer for durable storage. The answer
// content is opaque to the coordinator.
type SubmitAnswer struct {
	GameID     int64           `json:"gameId" validate:"required"`
	SlideID    int64           `json:"slideId" validate:"required"`
	StudentID  int64           `json:"studentId" validate:"required"`
	AnswerData json.RawMessage `json:"answerData" validate:"required"`
}

// AnswerSaved acknowledges a stored answer to its sender only.
type AnswerSaved struct {
	Success bool  `json:"success"`
	SlideID int64 `json:"slideId"`
}

// ShareAnswer is forwarded verbatim to the room.
type ShareAnswer struct {
	GameID      int64 `json:"gameId" validate:"required"`
	SlideID     int64 `json:"slideId" validate:"required"`
	AnswerID    int64 `json:"answerId" validate:"required"`
	IsAnonymous bool  `json:"isAnonymous"`
}

// RevealCorrect is forwarded verbatim to the room.
type RevealCorrect struct {
	GameID  int64 `json:"gameId" validate:"required"`
	SlideID int64 `json:"slideId" validate:"required"`
}

// AnswerUpdated notifies the game's teachers that a new answer is available.
type AnswerUpdated struct {
	GameID        int64 `json:"gameId"`
	SlideID       int64 `json:"slideId"`
	AnswerCount   int   `json:"answerCount"`
	TotalStudents int   `json:"totalStudents"`
}

// LeaveGame removes the calling connection's participant binding.
type LeaveGame struct {
	GameID int64 `json:"gameId" validate:"required"`
}

// ErrorEvent is delivered to the offending connection only, never broadcast.
type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
