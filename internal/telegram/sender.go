// Package telegram delivers operational alerts to a Telegram chat.
package telegram

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"votesecret/lib/sl"
)

const queueSize = 256

// Sender posts messages to one chat. Notify never blocks; with a flush interval
// messages are collected and sent as a single digest.
type Sender struct {
	log      *slog.Logger
	chatID   int64
	deliver  func(text string, markdown bool) error
	queue    chan string
	interval time.Duration

	mu      sync.Mutex
	pending []entry

	stop chan struct{}
	done chan struct{}
}

func New(apiKey string, chatID int64, interval time.Duration, log *slog.Logger) (*Sender, error) {
	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %w", err)
	}
	s := newSender(chatID, interval, log)
	s.deliver = func(text string, markdown bool) error {
		opts := &tgbotapi.SendMessageOpts{}
		if markdown {
			opts.ParseMode = "MarkdownV2"
		}
		_, err := api.SendMessage(chatID, text, opts)
		return err
	}
	return s, nil
}

func newSender(chatID int64, interval time.Duration, log *slog.Logger) *Sender {
	return &Sender{
		log:      log.With(sl.Module("telegram")),
		chatID:   chatID,
		queue:    make(chan string, queueSize),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sender) Start() {
	go func() {
		defer close(s.done)
		var tick <-chan time.Time
		if s.interval > 0 {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case msg := <-s.queue:
				s.plainResponse(msg)
			case <-tick:
				s.flush()
			case <-s.stop:
				s.drain()
				s.flush()
				return
			}
		}
	}()
	s.log.With(slog.Int64("chat", s.chatID), slog.Duration("digest", s.interval)).Info("telegram alerts enabled")
}

func (s *Sender) Stop() {
	close(s.stop)
	<-s.done
}

// Notify queues a MarkdownV2 formatted message.
func (s *Sender) Notify(level slog.Level, msg string) {
	if s.interval > 0 {
		s.mu.Lock()
		s.pending = append(s.pending, entry{message: msg, level: level, at: time.Now()})
		s.mu.Unlock()
		return
	}
	select {
	case s.queue <- msg:
	default:
		// the logger must not see this, it would feed back into the queue
	}
}

func (s *Sender) drain() {
	for {
		select {
		case msg := <-s.queue:
			s.plainResponse(msg)
		default:
			return
		}
	}
}

func (s *Sender) flush() {
	s.mu.Lock()
	entries := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(entries) == 0 {
		return
	}
	for _, part := range splitMessage(formatDigest(entries), maxMessageLen) {
		s.plainResponse(part)
	}
}

// plainResponse falls back to plain text when Telegram rejects the markup.
func (s *Sender) plainResponse(text string) {
	if text == "" || s.deliver == nil {
		return
	}
	err := s.deliver(text, true)
	if err == nil {
		return
	}
	s.log.Warn("sending message", sl.Err(err))
	if err = s.deliver(text, false); err != nil {
		s.log.Warn("sending safe message", sl.Err(err))
	}
}
