// Package bot maps chat commands onto the allocation and mapping services.
// The chat transport itself stays behind the Messenger interface.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mnitnetwork/otp-relay/internal/allocation"
	"github.com/mnitnetwork/otp-relay/internal/mapping"
)

// maxReplyLen bounds a single chat reply; the info report is raw upstream
// text of arbitrary length.
const maxReplyLen = 4000

const usageText = "OTP relay ready. Use /range <range-prefix> to allocate numbers, /my to list yours."

// Messenger sends chat messages. Satisfied by the telegram client.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Allocator runs the allocation flow for a subscriber.
type Allocator interface {
	Allocate(ctx context.Context, rangePrefix string, subscriber mapping.SubscriberID) (*allocation.Allocated, error)
}

// InfoAPI is the admin-only upstream allocation report.
type InfoAPI interface {
	AllocationInfo(ctx context.Context, q allocation.InfoQuery) (string, error)
}

// NumberSource lists the current mapping table, for /my.
type NumberSource interface {
	Snapshot() *mapping.Mappings
}

// Command is one parsed chat command.
type Command struct {
	ChatID int64
	Name   string
	Args   []string
}

// ParseCommand splits a chat message like "/range 88017" into a Command.
// Returns false for anything that is not a slash command.
func ParseCommand(chatID int64, text string) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") || len(fields[0]) < 2 {
		return Command{}, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	// "/range@SomeBot" form used in group chats.
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return Command{ChatID: chatID, Name: strings.ToLower(name), Args: fields[1:]}, true
}

// Router dispatches parsed commands to their handlers and replies through
// the Messenger.
type Router struct {
	messenger Messenger
	allocator Allocator
	info      InfoAPI
	numbers   NumberSource
	adminID   int64 // 0 means no admin configured
	logger    *slog.Logger
}

// NewRouter creates a command Router.
func NewRouter(messenger Messenger, allocator Allocator, info InfoAPI, numbers NumberSource, adminID int64, logger *slog.Logger) *Router {
	return &Router{
		messenger: messenger,
		allocator: allocator,
		info:      info,
		numbers:   numbers,
		adminID:   adminID,
		logger:    logger.With("component", "bot"),
	}
}

// Dispatch runs one command. Unknown commands are ignored.
func (r *Router) Dispatch(ctx context.Context, cmd Command) {
	switch cmd.Name {
	case "start":
		r.reply(ctx, cmd.ChatID, usageText)
	case "range":
		r.handleRange(ctx, cmd)
	case "my":
		r.handleMy(ctx, cmd)
	case "allocations":
		r.handleAllocations(ctx, cmd)
	default:
		r.logger.DebugContext(ctx, "Ignoring unknown command", "command", cmd.Name, "chat_id", cmd.ChatID)
	}
}

func (r *Router) handleRange(ctx context.Context, cmd Command) {
	if len(cmd.Args) == 0 {
		r.reply(ctx, cmd.ChatID, "Usage: /range <range-spec>  e.g. /range 88017XXX")
		return
	}

	allocated, err := r.allocator.Allocate(ctx, cmd.Args[0], mapping.SubscriberID(cmd.ChatID))
	if err != nil {
		r.logger.ErrorContext(ctx, "Allocation failed", "error", err, "chat_id", cmd.ChatID, "prefix", cmd.Args[0])
		r.reply(ctx, cmd.ChatID, allocationErrorText(err))
		return
	}
	r.reply(ctx, cmd.ChatID, "Allocated: "+allocated.Number)
}

func (r *Router) handleMy(ctx context.Context, cmd Command) {
	numbers := r.numbers.Snapshot().NumbersFor(mapping.SubscriberID(cmd.ChatID))
	if len(numbers) == 0 {
		r.reply(ctx, cmd.ChatID, "No numbers allocated to you.")
		return
	}
	r.reply(ctx, cmd.ChatID, "Your numbers:\n"+strings.Join(numbers, "\n"))
}

func (r *Router) handleAllocations(ctx context.Context, cmd Command) {
	if r.adminID == 0 || cmd.ChatID != r.adminID {
		r.reply(ctx, cmd.ChatID, "Not authorized.")
		return
	}

	q := allocation.InfoQuery{Page: "1", Status: "success"}
	if len(cmd.Args) > 0 {
		q.Date = cmd.Args[0]
	}
	if len(cmd.Args) > 1 {
		q.Page = cmd.Args[1]
	}
	if len(cmd.Args) > 2 {
		q.Status = cmd.Args[2]
	}

	report, err := r.info.AllocationInfo(ctx, q)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to fetch allocation info", "error", err, "chat_id", cmd.ChatID)
		r.reply(ctx, cmd.ChatID, "Fetch failed; check server logs.")
		return
	}
	if len(report) > maxReplyLen {
		report = report[:maxReplyLen]
	}
	r.reply(ctx, cmd.ChatID, report)
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if err := r.messenger.SendMessage(ctx, chatID, text); err != nil {
		r.logger.ErrorContext(ctx, "Failed to send chat reply", "error", err, "chat_id", chatID)
	}
}

func allocationErrorText(err error) string {
	var upErr *allocation.UpstreamError
	switch {
	case errors.Is(err, allocation.ErrNoNumber):
		return "Allocation failed: number not found in response"
	case errors.As(err, &upErr):
		return fmt.Sprintf("Allocation failed: %s", upErr.Error())
	default:
		return fmt.Sprintf("Allocation error: %v", err)
	}
}
