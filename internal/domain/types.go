package domain

import "time"

// CallStatus models the emergency call lifecycle. Transitions are
// monotonic: initiating -> connecting -> active -> (routing ->) ended.
type CallStatus string

const (
	CallStatusInitiating CallStatus = "initiating"
	CallStatusConnecting CallStatus = "connecting"
	CallStatusActive     CallStatus = "active"
	CallStatusRouting    CallStatus = "routing"
	CallStatusEnded      CallStatus = "ended"
)

// Rank orders statuses along the lifecycle for monotonicity checks.
func (s CallStatus) Rank() int {
	switch s {
	case CallStatusInitiating:
		return 0
	case CallStatusConnecting:
		return 1
	case CallStatusActive:
		return 2
	case CallStatusRouting:
		return 3
	case CallStatusEnded:
		return 4
	default:
		return -1
	}
}

// CallStateReason provides a structured reason for state transitions.
type CallStateReason string

const (
	CallReasonDialing        CallStateReason = "dialing"
	CallReasonLineConnecting CallStateReason = "line_connecting"
	CallReasonCallAnswered   CallStateReason = "call_answered"
	CallReasonRoutingHandoff CallStateReason = "routing_handoff"
	CallReasonCallerHangup   CallStateReason = "caller_hangup"
	CallReasonRouted         CallStateReason = "routed"
	CallReasonFatalError     CallStateReason = "fatal_error"
)

// ErrorCode identifies non-fatal and fatal engine errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeMicrophone    ErrorCode = "microphone"
	ErrorCodeRecognition   ErrorCode = "recognition"
	ErrorCodeSynthesis     ErrorCode = "synthesis"
	ErrorCodeRecording     ErrorCode = "recording"
	ErrorCodeTurnProcessor ErrorCode = "turn_processor"
	ErrorCodeAudioUpload   ErrorCode = "audio_upload"
	ErrorCodeFinalize      ErrorCode = "finalize"
	ErrorCodeStore         ErrorCode = "store"
)

// Sender identifies who produced a transcript turn.
type Sender string

const (
	SenderAI    Sender = "ai"
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Turn is one utterance in the call transcript. Immutable once appended.
type Turn struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CallCenterType selects which dispatch center handles the call.
type CallCenterType string

const (
	CallCenterMain     CallCenterType = "main"
	CallCenterHospital CallCenterType = "hospital"
)

// ExtractedFields holds structured data the turn processor pulls out of
// the conversation. Empty strings mean "not extracted yet".
type ExtractedFields struct {
	Name          string `json:"name,omitempty"`
	Location      string `json:"location,omitempty"`
	ContactNumber string `json:"contactNumber,omitempty"`
	EmergencyType string `json:"emergencyType,omitempty"`
}

// Merge applies an update last-write-wins per field. Empty values never
// overwrite a previously extracted one.
func (f *ExtractedFields) Merge(update ExtractedFields) {
	if update.Name != "" {
		f.Name = update.Name
	}
	if update.Location != "" {
		f.Location = update.Location
	}
	if update.ContactNumber != "" {
		f.ContactNumber = update.ContactNumber
	}
	if update.EmergencyType != "" {
		f.EmergencyType = update.EmergencyType
	}
}

// IsZero reports whether nothing has been extracted.
func (f ExtractedFields) IsZero() bool {
	return f == ExtractedFields{}
}

// CallSnapshot is a point-in-time copy of a call session's state.
type CallSnapshot struct {
	ID             string          `json:"id,omitempty"`
	Status         CallStatus      `json:"status"`
	CallCenterType CallCenterType  `json:"callCenterType"`
	HospitalID     string          `json:"hospitalId,omitempty"`
	Transcript     []Turn          `json:"transcript"`
	Extracted      ExtractedFields `json:"extracted"`
	CreatedAt      time.Time       `json:"createdAt"`
	EndedAt        time.Time       `json:"endedAt,omitempty"`
}

// EmergencyRecord is the persisted outcome of a finished call.
type EmergencyRecord struct {
	SessionID      string          `json:"sessionId,omitempty"`
	Transcript     []Turn          `json:"transcript"`
	Summary        string          `json:"summary"`
	Extracted      ExtractedFields `json:"extracted"`
	Priority       string          `json:"priority"`
	AudioRef       string          `json:"audioRef,omitempty"`
	HospitalID     string          `json:"hospitalId,omitempty"`
	CallCenterType CallCenterType  `json:"callCenterType"`
	CreatedAt      time.Time       `json:"createdAt"`
	EndedAt        time.Time       `json:"endedAt"`
}
