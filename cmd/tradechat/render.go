package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ageniuscoder/tradechat/internal/chat"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	styleMine   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleTheirs = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	styleSystem = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("220"))
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func renderMessage(m chat.Message, me int64) string {
	who := m.SenderDisplayName
	if who == "" {
		who = fmt.Sprintf("user %d", m.SenderID)
	}
	when := styleMuted.Render(humanize.Time(m.SentAt))

	switch p := m.Payload.(type) {
	case chat.System:
		return styleSystem.Render("* "+p.Body) + " " + when
	case chat.Image:
		return nameStyle(m.SenderID, me).Render(who+":") + " [image, " + humanize.Bytes(uint64(len(p.Ref))) + "] " + when
	default:
		return nameStyle(m.SenderID, me).Render(who+":") + " " + m.Body() + " " + when
	}
}

func nameStyle(sender, me int64) lipgloss.Style {
	if sender == me {
		return styleMine
	}
	return styleTheirs
}

func renderProposal(p chat.Proposal, me int64) string {
	var b strings.Builder
	direction := "to"
	peer := p.RecipientID
	if p.RecipientID == me {
		direction = "from"
		peer = p.SenderID
	}
	title := p.OfferTitle
	if title == "" {
		title = p.OfferRef
	}
	fmt.Fprintf(&b, "%s %s user %d  [%s]  %s\n",
		styleHeader.Render(p.ID), direction, peer, p.State, styleMuted.Render(humanize.Time(p.SentAt)))
	fmt.Fprintf(&b, "  offer:    %s\n", title)
	fmt.Fprintf(&b, "  proposal: %s (%s)\n", p.OfferDescription, p.ExchangeType)
	if p.ExchangeDetails != "" {
		fmt.Fprintf(&b, "  plus:     %s\n", p.ExchangeDetails)
	}
	if p.SubmittedContact != "" {
		fmt.Fprintf(&b, "  contact:  %s\n", p.SubmittedContact)
	}
	if p.DisclosedContact != "" {
		fmt.Fprintf(&b, "  owner:    %s\n", p.DisclosedContact)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderConversations(convs map[string][]chat.Message, me int64) string {
	ids := make([]string, 0, len(convs))
	for id := range convs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := convs[ids[i]], convs[ids[j]]
		if len(a) == 0 || len(b) == 0 {
			return len(a) > len(b)
		}
		return a[len(a)-1].SentAt.After(b[len(b)-1].SentAt)
	})

	var b strings.Builder
	for _, id := range ids {
		msgs := convs[id]
		if len(msgs) == 0 {
			continue
		}
		peer, _ := chat.Counterparty(id, me)
		last := msgs[len(msgs)-1]
		fmt.Fprintf(&b, "%s  %s\n", styleHeader.Render(fmt.Sprintf("user %d", peer)), renderMessage(last, me))
	}
	return b.String()
}
