package bootstrap

import (
	"time"

	"lifeline/internal/audio"
	"lifeline/internal/config"
	"lifeline/internal/domain"
	"lifeline/internal/ports"
	"lifeline/internal/providers/deepgram"
	"lifeline/internal/providers/dispatch"
	"lifeline/internal/providers/openai"
	"lifeline/internal/script"
	"lifeline/internal/store"
	"lifeline/internal/usecase"
)

// Services is the assembled runtime graph. Shared pieces (script,
// store, dispatch client) live for the process; each call session gets
// fresh audio and speech collaborators from NewSession.
type Services struct {
	Config   config.Config
	Lines    *script.Set
	Store    *store.Store
	Dispatch *dispatch.Client

	events        ports.EventSink
	stopScript    func()
	newRecognizer func() ports.Recognizer
	newSynth      func() ports.Synthesizer
	newRecorder   func() ports.Recorder
}

// Build wires all backend dependencies for the current runtime.
func Build(configPath string, events ports.EventSink) (Services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return Services{}, err
	}

	lines, err := script.Load(cfg.Script.Path)
	if err != nil {
		return Services{}, err
	}

	stopScript := func() {}
	if cfg.Script.Reload {
		stop, err := lines.Watch()
		if err != nil {
			return Services{}, err
		}
		stopScript = stop
	}

	journal, err := store.Open(cfg.Store.Path)
	if err != nil {
		stopScript()
		return Services{}, err
	}

	backend := dispatch.NewClient(dispatch.Config{
		BaseURL:   cfg.Dispatch.BaseURL,
		AuthToken: cfg.Dispatch.AuthToken,
		Timeout:   time.Duration(cfg.Dispatch.TimeoutMS) * time.Millisecond,
	})

	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}

	return Services{
		Config:     cfg,
		Lines:      lines,
		Store:      journal,
		Dispatch:   backend,
		events:     events,
		stopScript: stopScript,
		newRecognizer: func() ports.Recognizer {
			return deepgram.NewRecognizer(deepgram.Config{
				APIKey:         cfg.Deepgram.APIKey,
				APIBaseURL:     cfg.Deepgram.APIBaseURL,
				Model:          cfg.Deepgram.Model,
				Language:       cfg.Deepgram.Language,
				SmartFormat:    cfg.Deepgram.SmartFormat,
				EndpointingMS:  cfg.Deepgram.EndpointingMS,
				NoSpeechWindow: time.Duration(cfg.Deepgram.NoSpeechMS) * time.Millisecond,
			}, audio.NewFFmpegCapture(cfg.Audio.RecorderCommand), audioCfg, cfg.Audio.ChunkSize)
		},
		newSynth: func() ports.Synthesizer {
			return openai.NewSynthesizer(openai.Config{
				APIKey:        cfg.Speech.APIKey,
				Endpoint:      cfg.Speech.Endpoint,
				Model:         cfg.Speech.Model,
				Voice:         cfg.Speech.Voice,
				PlayerCommand: cfg.Speech.PlayerCommand,
			})
		},
		newRecorder: func() ports.Recorder {
			return audio.NewChunkRecorder(audio.NewFFmpegCapture(cfg.Audio.RecorderCommand), audioCfg, cfg.Audio.ChunkSize)
		},
	}, nil
}

// NewSession assembles a controller for one emergency call.
func (s Services) NewSession() *usecase.CallController {
	return usecase.NewCallController(usecase.Deps{
		Recognizer:  s.newRecognizer(),
		Synthesizer: s.newSynth(),
		Recorder:    s.newRecorder(),
		Processor:   s.Dispatch,
		Uploader:    s.Dispatch,
		Finalizer:   s.Dispatch,
		Store:       s.Store,
		Lines:       s.Lines,
		Events:      s.events,
	}, usecase.Config{
		CallCenterType:     domain.CallCenterType(s.Config.Call.CenterType),
		HospitalID:         s.Config.Call.HospitalID,
		InitiatingDelay:    s.Config.Call.InitiatingDelay,
		ConnectingDelay:    s.Config.Call.ConnectingDelay,
		RoutingDelay:       s.Config.Call.RoutingDelay,
		TurnTimeout:        s.Config.Call.TurnTimeout,
		ListenRestartDelay: s.Config.Call.ListenRestart,
		UploadTimeout:      s.Config.Call.UploadTimeout,
		FinalizeTimeout:    s.Config.Call.FinalizeTimeout,
	})
}

// Close releases process-wide resources.
func (s Services) Close() {
	if s.stopScript != nil {
		s.stopScript()
	}
}
