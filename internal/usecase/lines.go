package usecase

// Lines supplies the scripted wording the engine speaks on its own
// behalf: the greeting, closing and notices, plus the fallback ladder
// prompts used when the turn processor is unreachable.
type Lines interface {
	Greeting() string
	Closing() string
	MicDeniedNotice() string
	CallLoggedNotice() string
	AskName() string
	AskLocation() string
	Handoff() string
}
