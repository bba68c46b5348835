package toxfilebot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/opd-ai/toxfilebot/crypto"
	"github.com/opd-ai/toxfilebot/file"
	"github.com/opd-ai/toxfilebot/friend"
	"github.com/opd-ai/toxfilebot/limits"
	"github.com/opd-ai/toxfilebot/transport"
	"github.com/sirupsen/logrus"
)

// Bot receives files from friends.
type Bot struct {
	options   *Options
	keyPair   *crypto.KeyPair
	nospam    [4]byte
	transport transport.Transport
	registry  *friend.Registry
	files     *file.Manager

	mu            sync.Mutex
	name          string
	statusMessage string
	dirty         bool
	cancel        context.CancelFunc
	console       io.Writer
}

// New creates a Bot listening on options.ListenAddr.
func New(options *Options) (*Bot, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	udp, err := transport.NewUDPTransport(options.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", options.ListenAddr, err)
	}

	bot, err := NewWithTransport(options, udp)
	if err != nil {
		udp.Close()
		return nil, err
	}
	return bot, nil
}

// NewWithTransport creates a Bot on an existing transport.
func NewWithTransport(options *Options, t transport.Transport) (*Bot, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(options.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	saved, err := loadSaveFile(options.SaveFile)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		options:       options,
		transport:     t,
		registry:      friend.NewRegistry(options.PeerTimeout),
		name:          options.Name,
		statusMessage: options.StatusMessage,
	}

	if err := b.restoreIdentity(saved); err != nil {
		return nil, err
	}

	b.files = file.NewManager(t, b.registry, file.ManagerOptions{
		StagingDir:   options.StagingDir,
		MaxFileSize:  options.MaxFileSize,
		ActiveLimit:  options.ActiveLimit,
		StallTimeout: options.StallTimeout,
	})
	b.files.OnFinished(b.handleFinished)
	b.files.OnRejected(b.handleRejected)
	b.registry.OnConnectionStatus(b.handleConnectionStatus)

	t.RegisterHandler(transport.PacketFriendRequest, b.handleFriendRequest)
	t.RegisterHandler(transport.PacketPing, b.handlePing)
	t.RegisterHandler(transport.PacketFriendMessage, b.handleFriendMessage)

	logrus.WithFields(logrus.Fields{
		"function":   "New",
		"address":    b.Address(),
		"local_addr": t.LocalAddr().String(),
		"friends":    b.registry.Count(),
	}).Info("Bot created")

	return b, nil
}

// loadSaveFile reads the save file. A missing file yields nil; a corrupt one is
// logged and ignored so the bot can still start with a fresh identity.
func loadSaveFile(path string) (*SaveData, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read save file: %w", err)
	}

	saved, err := LoadSaveData(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "loadSaveFile",
			"save_file": path,
			"error":     err.Error(),
		}).Error("Save file loaded with error; starting fresh")
		return nil, nil
	}
	return saved, nil
}

func (b *Bot) restoreIdentity(saved *SaveData) error {
	if saved != nil {
		keyPair, err := crypto.FromSecretKey(saved.SecretKey)
		if err == nil {
			b.keyPair = keyPair
			b.nospam = saved.Nospam
			if saved.Name != "" {
				b.name = saved.Name
			}
			if saved.StatusMessage != "" {
				b.statusMessage = saved.StatusMessage
			}
			b.registry.Import(saved.Friends)
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"function": "restoreIdentity",
			"error":    err.Error(),
		}).Error("Saved secret key unusable; generating a new identity")
	}

	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	nospam, err := crypto.GenerateNospam()
	if err != nil {
		return fmt.Errorf("generate nospam: %w", err)
	}
	b.keyPair = keyPair
	b.nospam = nospam
	b.dirty = true
	return nil
}

// Address returns the printable address friends use to add the bot.
func (b *Bot) Address() string {
	return crypto.NewAddress(b.keyPair.Public, b.nospam).String()
}

// Name returns the bot name.
func (b *Bot) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

// StatusMessage returns the current status message.
func (b *Bot) StatusMessage() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusMessage
}

// SetStatusMessage changes the status message.
func (b *Bot) SetStatusMessage(message string) error {
	if len(message) > limits.MaxStatusMessageLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrStatusTooLong, len(message), limits.MaxStatusMessageLength)
	}

	b.mu.Lock()
	b.statusMessage = message
	b.dirty = true
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "SetStatusMessage",
		"status_message": message,
	}).Info("Status message updated")
	return nil
}

// Files returns the transfer manager.
func (b *Bot) Files() *file.Manager {
	return b.files
}

// Friends returns the friend registry.
func (b *Bot) Friends() *friend.Registry {
	return b.registry
}

// Run processes events until ctx is cancelled or Stop is called. Friends that
// stay silent longer than the peer timeout are marked offline and the state is
// saved whenever it changed. The state is saved once more before returning.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	filesErr := make(chan error, 1)
	go func() {
		filesErr <- b.files.Run(ctx)
	}()

	ticker := time.NewTicker(b.options.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			err := <-filesErr
			if saveErr := b.Save(); saveErr != nil {
				err = errors.Join(err, saveErr)
			}
			return err
		case <-ticker.C:
			b.maintain()
		}
	}
}

// Stop makes Run return.
func (b *Bot) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close shuts down the transport.
func (b *Bot) Close() error {
	return b.transport.Close()
}

func (b *Bot) maintain() {
	b.registry.ExpireIdle()

	b.mu.Lock()
	dirty := b.dirty
	b.mu.Unlock()

	if dirty {
		if err := b.Save(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "maintain",
				"error":    err.Error(),
			}).Error("Cannot save bot state")
		}
	}
}

// Save writes the bot state to the save file, if one is configured.
func (b *Bot) Save() error {
	if b.options.SaveFile == "" {
		return nil
	}

	b.mu.Lock()
	saveData := &SaveData{
		SecretKey:     b.keyPair.Private,
		Nospam:        b.nospam,
		Name:          b.name,
		StatusMessage: b.statusMessage,
		Friends:       b.registry.Export(),
		Timestamp:     time.Now().Unix(),
	}
	b.dirty = false
	b.mu.Unlock()

	data, err := saveData.Serialize()
	if err != nil {
		b.markDirty()
		return err
	}
	if err := writeFileAtomic(b.options.SaveFile, data); err != nil {
		b.markDirty()
		return fmt.Errorf("write save file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Save",
		"save_file": b.options.SaveFile,
		"friends":   len(saveData.Friends),
	}).Debug("Bot state saved")
	return nil
}

func (b *Bot) markDirty() {
	b.mu.Lock()
	b.dirty = true
	b.mu.Unlock()
}

// HandleCommand executes one console command.
func (b *Bot) HandleCommand(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandStatus:
		return b.SetStatusMessage(cmd.Args)
	case CommandList:
		return b.files.Do(ctx, func(q *file.Queue) {
			snapshot := q.Snapshot()
			logrus.WithFields(logrus.Fields{
				"function": "HandleCommand",
				"active":   q.ActiveCount(),
				"waiting":  q.WaitingCount(),
				"limit":    q.Limit(),
			}).Info("Transfer queue")
			renderTransfers(b.consoleOutput(), snapshot, q.Limit())
		})
	case CommandKill:
		b.Stop()
		return nil
	default:
		return nil
	}
}

// RunConsole reads commands from in until it is exhausted or ctx is done.
// Command output such as the transfer table is written to out.
func (b *Bot) RunConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	b.mu.Lock()
	b.console = out
	b.mu.Unlock()

	commands := readCommands(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-commands:
			if !ok {
				return nil
			}
			if err := b.HandleCommand(ctx, cmd); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "RunConsole",
					"command":  cmd.Kind,
					"error":    err.Error(),
				}).Warn("Console command failed")
			}
		}
	}
}

func (b *Bot) consoleOutput() io.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.console == nil {
		return os.Stdout
	}
	return b.console
}

// SendFriendMessage sends a text message to a friend.
func (b *Bot) SendFriendMessage(friendID uint32, message string) error {
	if err := limits.ValidateMessage([]byte(message)); err != nil {
		return err
	}

	addr, err := b.registry.FriendAddr(friendID)
	if err != nil {
		return err
	}

	return b.transport.Send(&transport.Packet{
		PacketType: transport.PacketFriendMessage,
		Data:       []byte(message),
	}, addr)
}

func (b *Bot) handleFriendRequest(packet *transport.Packet, addr net.Addr) error {
	req, err := transport.DecodeFriendRequest(packet.Data)
	if err != nil {
		return err
	}

	if _, added := b.registry.Accept(req.PublicKey, addr); added {
		b.markDirty()
	}
	return nil
}

func (b *Bot) handlePing(_ *transport.Packet, addr net.Addr) error {
	_, err := b.registry.Touch(addr)
	return err
}

func (b *Bot) handleFriendMessage(packet *transport.Packet, addr net.Addr) error {
	friendID, err := b.registry.Touch(addr)
	if err != nil {
		return err
	}
	message, err := transport.DecodeFriendMessage(packet.Data)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "handleFriendMessage",
		"friend_id": friendID,
		"message":   message,
	}).Info("Friend message received")
	return nil
}

func (b *Bot) handleConnectionStatus(friendID uint32, status friend.ConnectionStatus) {
	var err error
	if status == friend.ConnectionNone {
		err = b.files.PeerOffline(friendID)
	} else {
		err = b.files.PeerOnline(friendID)
	}
	if err != nil && !errors.Is(err, file.ErrManagerStopped) {
		logrus.WithFields(logrus.Fields{
			"function":  "handleConnectionStatus",
			"friend_id": friendID,
			"status":    status,
			"error":     err.Error(),
		}).Warn("Cannot report connection status to the transfer queue")
	}
	b.markDirty()
}

func (b *Bot) handleFinished(friendID, fileID uint32, path string) {
	logrus.WithFields(logrus.Fields{
		"function":  "handleFinished",
		"friend_id": friendID,
		"file_id":   fileID,
		"path":      path,
	}).Info("File received")
}

func (b *Bot) handleRejected(friendID uint32, req transport.FileRequest) {
	message := fmt.Sprintf("File is too big, max allowed size is %s", limits.FormatSize(b.options.MaxFileSize))
	if err := b.SendFriendMessage(friendID, message); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "handleRejected",
			"friend_id": friendID,
			"file_id":   req.FileID,
			"error":     err.Error(),
		}).Warn("Cannot tell friend the file is too big")
	}
}
