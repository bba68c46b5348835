package toxfilebot

import (
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/toxfilebot/file"
	"github.com/opd-ai/toxfilebot/limits"
)

var (
	ErrInvalidListenAddr   = errors.New("listen address must be set")
	ErrInvalidStagingDir   = errors.New("staging directory must be set")
	ErrInvalidActiveLimit  = errors.New("active limit must be greater than 0")
	ErrInvalidSaveInterval = errors.New("save interval must be greater than 0")
	ErrNegativeTimeout     = errors.New("timeouts cannot be negative")
	ErrInvalidName         = errors.New("bot name must be between 1 and 128 bytes")
	ErrStatusTooLong       = errors.New("status message too long")
)

// DefaultName is the name the bot announces itself with.
const DefaultName = "filebot"

// Options contains configuration options for creating a Bot.
type Options struct {
	ListenAddr    string
	StagingDir    string
	SaveFile      string
	Name          string
	StatusMessage string
	MaxFileSize   uint64
	ActiveLimit   int
	StallTimeout  time.Duration
	PeerTimeout   time.Duration
	SaveInterval  time.Duration
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		ListenAddr:   ":33445",
		StagingDir:   file.DefaultStagingDir,
		Name:         DefaultName,
		MaxFileSize:  limits.DefaultMaxFileSize,
		ActiveLimit:  file.ActiveLimit,
		StallTimeout: 0, // Disabled by default
		PeerTimeout:  30 * time.Second,
		SaveInterval: 500 * time.Millisecond,
	}
}

// Validate ensures the options are usable.
func (o *Options) Validate() error {
	if o.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if o.StagingDir == "" {
		return ErrInvalidStagingDir
	}
	if o.Name == "" || len(o.Name) > limits.MaxNameLength {
		return ErrInvalidName
	}
	if len(o.StatusMessage) > limits.MaxStatusMessageLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrStatusTooLong, len(o.StatusMessage), limits.MaxStatusMessageLength)
	}
	if o.ActiveLimit <= 0 {
		return ErrInvalidActiveLimit
	}
	if o.SaveInterval <= 0 {
		return ErrInvalidSaveInterval
	}
	if o.StallTimeout < 0 || o.PeerTimeout < 0 {
		return ErrNegativeTimeout
	}
	return nil
}
