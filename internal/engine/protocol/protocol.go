package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CommandType enumerates all supported client -> engine commands.
type CommandType string

const (
	CommandRun        CommandType = "run"
	CommandFix        CommandType = "fix"
	CommandLanguages  CommandType = "languages"
	CommandGetConfig  CommandType = "get_config"
	CommandSaveConfig CommandType = "save_config"
)

// Command is a marker interface implemented by all protocol commands.
type Command interface {
	GetType() CommandType
	GetRequestID() string
}

// RunCommand executes code.
type RunCommand struct {
	Type      CommandType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Language  string      `json:"language"`
	TimeoutMS int64       `json:"timeout_ms,omitempty"`
}

// GetType implements Command.
func (c RunCommand) GetType() CommandType { return CommandRun }

// GetRequestID implements Command.
func (c RunCommand) GetRequestID() string { return c.RequestID }

// FixCommand asks the configured model to repair code.
type FixCommand struct {
	Type      CommandType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Language  string      `json:"language"`
	Report    string      `json:"report,omitempty"`
}

// GetType implements Command.
func (c FixCommand) GetType() CommandType { return CommandFix }

// GetRequestID implements Command.
func (c FixCommand) GetRequestID() string { return c.RequestID }

// LanguagesCommand lists the executable languages.
type LanguagesCommand struct {
	Type      CommandType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
}

// GetType implements Command.
func (c LanguagesCommand) GetType() CommandType { return CommandLanguages }

// GetRequestID implements Command.
func (c LanguagesCommand) GetRequestID() string { return c.RequestID }

// GetConfigCommand requests the persisted configuration, with secrets masked.
type GetConfigCommand struct {
	Type      CommandType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
}

// GetType implements Command.
func (c GetConfigCommand) GetType() CommandType { return CommandGetConfig }

// GetRequestID implements Command.
func (c GetConfigCommand) GetRequestID() string { return c.RequestID }

// SaveConfigCommand persists user configuration.
type SaveConfigCommand struct {
	Type      CommandType       `json:"type"`
	RequestID string            `json:"request_id,omitempty"`
	Config    map[string]string `json:"config"`
}

// GetType implements Command.
func (c SaveConfigCommand) GetType() CommandType { return CommandSaveConfig }

// GetRequestID implements Command.
func (c SaveConfigCommand) GetRequestID() string { return c.RequestID }

type rawCommand struct {
	Type      CommandType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
}

// DecodeCommand converts raw JSON into a strongly typed command. A missing
// request_id is replaced by a fresh one so every reply can be correlated.
func DecodeCommand(data []byte) (Command, error) {
	var base rawCommand
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch base.Type {
	case CommandRun:
		var cmd RunCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		if cmd.TimeoutMS < 0 {
			return nil, errors.New("run requires a non-negative timeout_ms")
		}
		cmd.RequestID = orNewID(cmd.RequestID)
		return cmd, nil
	case CommandFix:
		var cmd FixCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode fix: %w", err)
		}
		if cmd.Code == "" {
			return nil, errors.New("fix requires code")
		}
		cmd.RequestID = orNewID(cmd.RequestID)
		return cmd, nil
	case CommandLanguages:
		var cmd LanguagesCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode languages: %w", err)
		}
		cmd.RequestID = orNewID(cmd.RequestID)
		return cmd, nil
	case CommandGetConfig:
		var cmd GetConfigCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode get_config: %w", err)
		}
		cmd.RequestID = orNewID(cmd.RequestID)
		return cmd, nil
	case CommandSaveConfig:
		var cmd SaveConfigCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode save_config: %w", err)
		}
		if len(cmd.Config) == 0 {
			return nil, errors.New("save_config requires config")
		}
		cmd.RequestID = orNewID(cmd.RequestID)
		return cmd, nil
	default:
		return nil, fmt.Errorf("unknown command type: %s", base.Type)
	}
}

// NewRequestID generates a new opaque request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

func orNewID(id string) string {
	if id == "" {
		return NewRequestID()
	}
	return id
}

// EventType enumerates engine -> client events.
type EventType string

const (
	EventReady        EventType = "ready"
	EventResult       EventType = "result"
	EventFix          EventType = "fix"
	EventLanguages    EventType = "languages"
	EventConfigLoaded EventType = "config_loaded"
	EventConfigSaved  EventType = "config_saved"
	EventError        EventType = "error"
)

// Error codes carried by ErrorEvent.
const (
	ErrCodeInvalidCommand = "invalid_command"
	ErrCodeFixUnavailable = "fix_unavailable"
	ErrCodeFixFailed      = "fix_failed"
	ErrCodeConfig         = "config_error"
	ErrCodeProtocol       = "protocol_error"
)

// Event is implemented by every outgoing message.
type Event interface {
	isEvent()
	GetType() EventType
}

// MarshalEvent serializes an event into JSON for NDJSON transport.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type eventBase struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
}

func (eventBase) isEvent() {}

// GetType implements Event.
func (e eventBase) GetType() EventType { return e.Type }

// LanguageInfo names one executable language.
type LanguageInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReadyEvent is emitted once when the bridge accepts commands.
type ReadyEvent struct {
	eventBase
	Languages []LanguageInfo `json:"languages"`
	Fix       bool           `json:"fix"`
}

// NewReadyEvent constructs a ready event.
func NewReadyEvent(languages []LanguageInfo, fix bool) ReadyEvent {
	return ReadyEvent{
		eventBase: eventBase{Type: EventReady},
		Languages: languages,
		Fix:       fix,
	}
}

// ResultEvent carries the outcome of a run command.
type ResultEvent struct {
	eventBase
	RunID      string `json:"run_id,omitempty"`
	Language   string `json:"language"`
	Outcome    string `json:"outcome"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Report     string `json:"report"`
}

// NewResultEvent constructs a result event.
func NewResultEvent(requestID, runID, language, outcome string, exitCode *int, durationMS int64, report string) ResultEvent {
	return ResultEvent{
		eventBase:  eventBase{Type: EventResult, RequestID: requestID},
		RunID:      runID,
		Language:   language,
		Outcome:    outcome,
		ExitCode:   exitCode,
		DurationMS: durationMS,
		Report:     report,
	}
}

// FixEvent carries suggested code.
type FixEvent struct {
	eventBase
	Code    string `json:"code"`
	Changed bool   `json:"changed"`
}

// NewFixEvent constructs a fix event.
func NewFixEvent(requestID, code string, changed bool) FixEvent {
	return FixEvent{
		eventBase: eventBase{Type: EventFix, RequestID: requestID},
		Code:      code,
		Changed:   changed,
	}
}

// LanguagesEvent answers a languages command.
type LanguagesEvent struct {
	eventBase
	Languages []LanguageInfo `json:"languages"`
}

// NewLanguagesEvent constructs a languages event.
func NewLanguagesEvent(requestID string, languages []LanguageInfo) LanguagesEvent {
	return LanguagesEvent{
		eventBase: eventBase{Type: EventLanguages, RequestID: requestID},
		Languages: languages,
	}
}

// ConfigLoadedEvent returns the current configuration.
type ConfigLoadedEvent struct {
	eventBase
	Config map[string]string `json:"config"`
}

// NewConfigLoadedEvent constructs a config_loaded event.
func NewConfigLoadedEvent(requestID string, config map[string]string) ConfigLoadedEvent {
	return ConfigLoadedEvent{
		eventBase: eventBase{Type: EventConfigLoaded, RequestID: requestID},
		Config:    config,
	}
}

// ConfigSavedEvent acknowledges save_config.
type ConfigSavedEvent struct {
	eventBase
	Fix bool `json:"fix"` // whether an AI provider is usable after the save
}

// NewConfigSavedEvent constructs a config_saved event.
func NewConfigSavedEvent(requestID string, fix bool) ConfigSavedEvent {
	return ConfigSavedEvent{
		eventBase: eventBase{Type: EventConfigSaved, RequestID: requestID},
		Fix:       fix,
	}
}

// ErrorEvent reports recoverable protocol or engine issues.
type ErrorEvent struct {
	eventBase
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// NewErrorEvent constructs an error event.
func NewErrorEvent(requestID, message, code, details string) ErrorEvent {
	return ErrorEvent{
		eventBase: eventBase{Type: EventError, RequestID: requestID},
		Message:   message,
		Code:      code,
		Details:   details,
	}
}
