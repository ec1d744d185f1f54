package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"chatkit/internal/api"
	"chatkit/internal/realtime"
	v1 "chatkit/wire/v1"
)

var watchCmd = &cobra.Command{
	Use:   "watch <chat-id | @username>",
	Short: "Follow a chat in real time; lines typed on stdin are sent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, client, err := setup()
		if err != nil {
			return err
		}
		return runWatch(cmd.Context(), cfg, log, client, args[0])
	},
}

// watchSession is the state of one watch run: the single-chat "screen"
// consuming the realtime core.
type watchSession struct {
	cfg    Config
	log    *slog.Logger
	client *api.Client

	direct   bool
	username string // direct target, without the @
	chatID   string // empty until a direct chat exists server-side

	conn    *realtime.Conn
	tracker *realtime.TypingTracker
}

func runWatch(parent context.Context, cfg Config, log *slog.Logger, client *api.Client, target string) error {
	if !client.Session().Authenticated() {
		// An expired token may still be refreshable; only a missing one
		// is hopeless without a login.
		if client.Session().AccessToken() == "" {
			return errors.New("not logged in: run `chatkit login` first")
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(log, cfg.MetricsAddr)
	}

	w := &watchSession{cfg: cfg, log: log, client: client}
	if strings.HasPrefix(target, "@") {
		w.direct = true
		w.username = strings.TrimPrefix(target, "@")
		if w.username == "" {
			return errors.New("empty username")
		}
	} else {
		w.chatID = target
	}

	if err := w.loadHistory(ctx); err != nil {
		return err
	}

	// A direct chat that does not exist yet has no chat id; the realtime
	// channel is joined after the first message creates it.
	if w.chatID != "" {
		if err := w.openRealtime(ctx); err != nil {
			log.Warn("watch.realtime.unavailable", "err", err)
		}
	}
	defer w.teardown()

	fmt.Println("-- watching; type a message and press enter, /quit to exit --")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			if err := w.sendMessage(ctx, line); err != nil {
				if errors.Is(err, api.ErrUserNotFound) {
					return err
				}
				log.Error("watch.send.fail", "err", err)
			}
		}
	}
}

func (w *watchSession) loadHistory(ctx context.Context) error {
	var (
		page api.MessagesPage
		err  error
	)
	if w.direct {
		page, err = w.client.DirectMessages(ctx, w.username, "", api.Older, 20)
	} else {
		page, err = w.client.ChatMessages(ctx, w.chatID, "", api.Older, 20)
	}
	if err != nil {
		return err
	}

	if page.Chat != nil {
		w.chatID = page.Chat.ID
		fmt.Printf("== %s ==\n", page.Chat.Name)
	} else if w.direct {
		fmt.Printf("== @%s (no messages yet) ==\n", w.username)
	}

	// The server returns newest first; print oldest first.
	for i := len(page.Messages) - 1; i >= 0; i-- {
		printMessage(page.Messages[i], false)
	}
	return nil
}

func (w *watchSession) openRealtime(ctx context.Context) error {
	socketURL, err := w.client.SocketURL()
	if err != nil {
		return err
	}

	conn, err := realtime.NewConn(w.log, realtime.ConnConfig{
		URL:             socketURL,
		ReconnectBase:   w.cfg.ReconnectBase,
		ReconnectMax:    w.cfg.ReconnectMax,
		ReconnectJitter: w.cfg.ReconnectJitter,
		MaxAttempts:     w.cfg.ReconnectMaxAttempts,
	}, realtime.NewRegistry(w.log), realtime.NewMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	w.conn = conn

	selfID := w.client.Session().User().ID
	w.tracker = realtime.NewTypingTracker(w.log, realtime.TypingConfig{
		SelfID:       selfID,
		Idle:         w.cfg.TypingIdle,
		RemoteExpiry: w.cfg.RemoteTypingExpiry,
	}, w.sendTyping)

	router := &realtime.ChatRouter{
		Log: w.log,
		OnNewMessage: func(m v1.Message) {
			if !w.direct && m.ChatID != w.chatID {
				return
			}
			printMessage(m, m.Sender.ID == selfID)
		},
		OnUserTyping: func(t v1.UserTyping) {
			w.tracker.Update(t.UserID, t.UserName, t.IsTyping)
			if names := w.tracker.Users(); len(names) > 0 {
				fmt.Printf("· %s typing…\n", strings.Join(names, ", "))
			}
		},
		OnMessageEdited: func(m v1.Message) {
			if !w.direct && m.ChatID != w.chatID {
				return
			}
			printMessage(m, m.Sender.ID == selfID)
		},
	}
	router.Bind(conn.Registry())

	return conn.Connect(ctx)
}

func (w *watchSession) sendTyping(isTyping bool) bool {
	if w.conn == nil || w.chatID == "" {
		return false
	}
	env, err := v1.NewEnvelope(v1.TypeTyping, v1.Typing{ChatID: w.chatID, IsTyping: isTyping})
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.conn.Send(ctx, env)
}

// sendMessage mirrors the screen logic: prefer the realtime channel when
// connected, fall back to REST, and create the direct chat through REST
// on the first message.
func (w *watchSession) sendMessage(ctx context.Context, content string) error {
	if w.tracker != nil {
		w.tracker.StopTyping()
	}

	if w.direct && w.chatID == "" {
		msg, chat, err := w.client.SendDirectMessage(ctx, w.username, content)
		if err != nil {
			return err
		}
		if chat != nil {
			w.chatID = chat.ID
		} else if msg.ChatID != "" {
			w.chatID = msg.ChatID
		}
		// Chat now exists; join the realtime channel.
		if w.conn == nil && w.chatID != "" {
			if err := w.openRealtime(ctx); err != nil {
				w.log.Warn("watch.realtime.unavailable", "err", err)
			}
		}
		return nil
	}

	if w.conn != nil && w.conn.IsConnected() {
		env, err := v1.NewEnvelope(v1.TypeSendMessage, v1.SendMessage{ChatID: w.chatID, Content: content})
		if err != nil {
			return err
		}
		if w.conn.Send(ctx, env) {
			return nil
		}
		// Dropped mid-reconnect; fall through to REST.
	}

	if w.direct {
		_, _, err := w.client.SendDirectMessage(ctx, w.username, content)
		return err
	}
	_, err := w.client.SendChatMessage(ctx, w.chatID, content)
	return err
}

func (w *watchSession) teardown() {
	if w.tracker != nil {
		w.tracker.Close()
	}
	if w.conn != nil {
		w.conn.Close()
	}
}

func printMessage(m v1.Message, own bool) {
	name := m.Sender.Name
	if own {
		name = "me"
	}
	suffix := ""
	if m.Edited {
		suffix = " (edited)"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.Timestamp.Local().Format("15:04"), name, m.Content, suffix)
}

func serveMetrics(log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("metrics.listen", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics.stopped", "err", err)
	}
}
