package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ageniuscoder/tradechat/internal/auth"
	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/negotiation"
	"github.com/ageniuscoder/tradechat/internal/reconcile"
	"github.com/ageniuscoder/tradechat/internal/remote"
	"github.com/ageniuscoder/tradechat/internal/session"
	"github.com/ageniuscoder/tradechat/internal/store"
)

// openSession builds the local-first client for the user named in auth_token.
func (a *app) openSession(ctx context.Context) (*session.Session, *remote.Client, error) {
	token := a.cfg.AuthToken
	if token == "" {
		return nil, nil, errors.New("auth_token is required; issue one with `tradechat token`")
	}
	claims, err := auth.PeekClaims(token)
	if err != nil {
		return nil, nil, fmt.Errorf("read auth_token: %w", err)
	}
	if claims.UserID <= 0 {
		return nil, nil, errors.New("auth_token carries no user id")
	}

	p, err := session.OpenPersister(a.cfg.LocalDriver, a.cfg.LocalPath)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(ctx, p)
	client := remote.NewClient(a.cfg.RemoteURL, token, a.cfg.PushTimeout)

	sess := session.New(ctx, session.Identity{UserID: claims.UserID, Name: claims.Name}, st, client, session.Options{
		Reconcile: reconcile.Config{
			ChatInterval:       a.cfg.ChatInterval,
			ListInterval:       a.cfg.ListInterval,
			BackgroundInterval: a.cfg.BackgroundInterval,
			PushTimeout:        a.cfg.PushTimeout,
		},
		TypingWindow:    a.cfg.TypingWindow,
		FreshnessWindow: a.cfg.FreshnessWindow,
		HintCapacity:    a.cfg.HintCapacity,
		MaxImageBytes:   a.cfg.MaxImageBytes,
		ContactRegion:   a.cfg.ContactRegion,
	})
	return sess, client, nil
}

// withSession runs fn between a pull and a final push.
func (a *app) withSession(cmd *cobra.Command, fn func(*session.Session) error) error {
	ctx := cmd.Context()
	sess, _, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if res := sess.Sync(ctx); res.Err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), styleMuted.Render("relay unreachable; working from the local cache"))
	}
	if err := fn(sess); err != nil {
		return err
	}
	sess.Sync(ctx)
	if n := sess.Store().PendingCount(); n > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), styleMuted.Render(fmt.Sprintf("%d message(s) waiting for the relay", n)))
	}
	return nil
}

func parsePeer(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

func newSendCmd(a *app) *cobra.Command {
	var imagePath string
	cmd := &cobra.Command{
		Use:   "send <user-id> [text]",
		Short: "Send a text or image message",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := parsePeer(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, func(sess *session.Session) error {
				var msg chat.Message
				switch {
				case imagePath != "":
					data, err := os.ReadFile(imagePath)
					if err != nil {
						return err
					}
					msg, err = sess.SendImage(peer, data)
					if err != nil {
						return err
					}
				case len(args) == 2:
					msg, err = sess.SendText(peer, args[1])
					if err != nil {
						return err
					}
				default:
					return errors.New("nothing to send: pass text or --image")
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderMessage(msg, sess.Me().UserID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "send this image file instead of text")
	return cmd
}

func newProposeCmd(a *app) *cobra.Command {
	var req negotiation.SubmitRequest
	var exchange string
	cmd := &cobra.Command{
		Use:   "propose <owner-id>",
		Short: "Send a trade proposal for an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parsePeer(args[0])
			if err != nil {
				return err
			}
			req.RecipientID = owner
			req.ExchangeType = chat.ExchangeType(exchange)
			return a.withSession(cmd, func(sess *session.Session) error {
				p, err := sess.Propose(req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderProposal(p, sess.Me().UserID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.OfferRef, "offer", "", "offer reference")
	cmd.Flags().StringVar(&req.OfferTitle, "title", "", "offer title")
	cmd.Flags().StringVar(&req.OfferImageRef, "offer-image", "", "offer image reference")
	cmd.Flags().StringVar(&req.OfferDescription, "description", "", "what you offer")
	cmd.Flags().StringVar(&exchange, "type", string(chat.OfferOnly), "offer_only | offer_plus | negotiate")
	cmd.Flags().StringVar(&req.ExchangeDetails, "details", "", "extra items (offer_plus)")
	cmd.Flags().StringVar(&req.SubmittedContact, "contact", "", "your contact details (negotiate)")
	return cmd
}

func newAcceptCmd(a *app) *cobra.Command {
	var contact string
	cmd := &cobra.Command{
		Use:   "accept <proposal-id>",
		Short: "Accept a proposal and share your contact details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(sess *session.Session) error {
				p, err := sess.Accept(args[0], contact)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderProposal(p, sess.Me().UserID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contact, "contact", "", "contact details disclosed to the proposer")
	return cmd
}

func newRejectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <proposal-id>",
		Short: "Reject a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(sess *session.Session) error {
				p, err := sess.Reject(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderProposal(p, sess.Me().UserID))
				return nil
			})
		},
	}
}

func newInboxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Show conversations, unread badge and proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(sess *session.Session) error {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, styleHeader.Render(fmt.Sprintf("Unread: %d", sess.UnreadCount())))
				fmt.Fprint(out, renderConversations(sess.Conversations(), sess.Me().UserID))
				proposals := sess.Proposals()
				if len(proposals) > 0 {
					fmt.Fprintln(out, styleHeader.Render("Proposals"))
					for _, p := range proposals {
						fmt.Fprintln(out, renderProposal(p, sess.Me().UserID))
					}
				}
				return nil
			})
		},
	}
}
