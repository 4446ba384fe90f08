package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/session"
)

const chatRefresh = 250 * time.Millisecond

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <user-id>",
		Short: "Open an interactive conversation",
		Long: "Open an interactive conversation. Type a line to send it.\n" +
			"Commands: /image <path>, /block, /unblock, /quit",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := parsePeer(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			sess, client, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			if sub, err := client.Subscribe(ctx, sess.HandleEvent); err == nil {
				sess.SetTypingSink(sub)
				defer sub.Close()
			} else {
				fmt.Fprintln(out, styleMuted.Render("realtime feed unavailable; polling only"))
			}

			msgs, err := sess.OpenChat(peer)
			if err != nil {
				return err
			}
			defer sess.CloseChat()

			fmt.Fprintln(out, styleHeader.Render(fmt.Sprintf("Chat with user %d", peer)))
			v := &chatView{out: out, sess: sess, peer: peer, seen: make(map[chat.DedupKey]bool)}
			v.print(msgs)

			lines := make(chan string)
			go readLines(cmd.InOrStdin(), lines)

			ticker := time.NewTicker(chatRefresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if quit := v.handle(line); quit {
						return nil
					}
				case <-ticker.C:
					v.refresh()
				}
			}
		},
	}
}

type chatView struct {
	out     io.Writer
	sess    *session.Session
	peer    int64
	seen    map[chat.DedupKey]bool
	version uint64
	typing  bool
}

func (v *chatView) print(msgs []chat.Message) {
	for _, m := range msgs {
		key := m.Key()
		if v.seen[key] {
			continue
		}
		v.seen[key] = true
		fmt.Fprintln(v.out, renderMessage(m, v.sess.Me().UserID))
	}
}

func (v *chatView) refresh() {
	if ver := v.sess.Store().Version(); ver != v.version {
		v.version = ver
		v.print(v.sess.Messages(v.peer))
	}
	typing := v.sess.IsTyping(v.peer)
	if typing && !v.typing {
		fmt.Fprintln(v.out, styleMuted.Render(fmt.Sprintf("user %d is typing...", v.peer)))
	}
	v.typing = typing
}

func (v *chatView) handle(line string) bool {
	line = strings.TrimSpace(line)
	var err error
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/block":
		v.sess.Block(v.peer)
		fmt.Fprintln(v.out, styleMuted.Render("blocked"))
	case line == "/unblock":
		v.sess.Unblock(v.peer)
		fmt.Fprintln(v.out, styleMuted.Render("unblocked"))
	case strings.HasPrefix(line, "/image "):
		var data []byte
		data, err = os.ReadFile(strings.TrimSpace(strings.TrimPrefix(line, "/image ")))
		if err == nil {
			_, err = v.sess.SendImage(v.peer, data)
		}
	default:
		v.sess.Typing()
		_, err = v.sess.SendText(v.peer, line)
	}
	if err != nil {
		fmt.Fprintln(v.out, styleSystem.Render("! "+err.Error()))
	}
	v.refresh()
	return false
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}
