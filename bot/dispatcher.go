package bot

import (
	"Omni/core"
	"Omni/lib/sl"
	"Omni/lib/tokenizer"
	"Omni/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnavailable marks a known capability that has no provider bound, for
// example when the backing API key is not configured.
var ErrUnavailable = errors.New("capability unavailable")

// Status classifies a dispatch reply. Guidance statuses are turned into user
// text locally and never surface as errors; provider and persistence failures
// come back as ordinary errors instead.
type Status int

const (
	StatusOK Status = iota
	StatusNoSelection
	StatusKindMismatch
	StatusRejectedInput
)

// Reply is what the transport should deliver back to the user.
type Reply struct {
	Status Status
	Shape  core.ReplyShape
	Text   string
	// set on StatusOK depending on Shape
	ImageURL string
	Audio    []byte
}

// Notifier lets the dispatcher send a fire-and-forget "working on it"
// acknowledgment before the provider call. Failures inside Busy must never
// abort the flow.
type Notifier interface {
	Busy(ctx context.Context, chatId int64, shape core.ReplyShape)
}

// Dispatcher routes an inbound payload to the provider bound to the user's
// selected capability and records usage on success. It never changes the
// selection itself; only Select does.
type Dispatcher struct {
	store     storage.Storage
	providers map[core.Capability]core.Provider
	validator *tokenizer.Validator
	log       *slog.Logger
	notify    Notifier
}

func NewDispatcher(
	store storage.Storage,
	providers map[core.Capability]core.Provider,
	validator *tokenizer.Validator,
	log *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:     store,
		providers: providers,
		validator: validator,
		log:       log.With(sl.Module("dispatcher")),
	}
}

// SetNotifier set busy acknowledgment sink
func (d *Dispatcher) SetNotifier(n Notifier) {
	d.notify = n
}

// Register records the user on first contact. Called before anything else on
// every inbound event; attributes are never refreshed afterwards.
func (d *Dispatcher) Register(user *storage.User) error {
	return d.store.EnsureUser(user)
}

// Select writes the user's capability selection. Re-selecting the current
// tag is a no-op transition. A capability with no provider bound is rejected
// with ErrUnavailable and the stored selection stays untouched.
func (d *Dispatcher) Select(user *storage.User, tag string) (core.Capability, error) {
	capability, ok := core.ParseTag(tag)
	if !ok {
		return core.CapNone, fmt.Errorf("unknown capability tag %q", tag)
	}

	if err := d.store.EnsureUser(user); err != nil {
		return core.CapNone, err
	}
	if _, ok := d.providers[capability]; !ok {
		return core.CapNone, fmt.Errorf("%s: %w", capability.Service(), ErrUnavailable)
	}
	if err := d.store.SetSelection(user.UserId, tag); err != nil {
		return core.CapNone, err
	}

	d.log.With(sl.User(user.UserId), slog.String("tag", tag)).Info("capability selected")
	return capability, nil
}

// Selection returns the user's current capability, CapNone when unset. A
// persisted tag the registry does not know is treated as unset.
func (d *Dispatcher) Selection(userId int64) (core.Capability, error) {
	tag, err := d.store.Selection(userId)
	if err != nil {
		return core.CapNone, err
	}
	if tag == "" {
		return core.CapNone, nil
	}
	capability, ok := core.ParseTag(tag)
	if !ok {
		d.log.With(sl.User(userId), slog.String("tag", tag)).Warn("unknown persisted tag")
		return core.CapNone, nil
	}
	return capability, nil
}

// Counts returns the user's usage counters keyed by service name.
func (d *Dispatcher) Counts(userId int64) (map[string]int, error) {
	return d.store.UsageCounts(userId)
}

// Dispatch runs the routing state machine for one inbound payload:
// ensure user, read selection, check payload kind, validate text, acknowledge,
// invoke the bound provider, then count the success. Guidance outcomes carry
// their user text in the reply; provider and persistence errors propagate.
func (d *Dispatcher) Dispatch(ctx context.Context, user *storage.User, chatId int64, payload *core.Payload) (*Reply, error) {
	if err := d.store.EnsureUser(user); err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}

	capability, err := d.Selection(user.UserId)
	if err != nil {
		return nil, fmt.Errorf("reading selection: %w", err)
	}
	if capability == core.CapNone {
		return &Reply{Status: StatusNoSelection, Shape: core.ReplyText, Text: noSelectionResponse}, nil
	}

	desc := capability.Descriptor()

	if payload.Kind != desc.Expects {
		return &Reply{
			Status: StatusKindMismatch,
			Shape:  core.ReplyText,
			Text:   kindMismatchResponse(desc),
		}, nil
	}

	if desc.Expects == core.KindText && !d.validator.Validate(payload.Text) {
		return &Reply{Status: StatusRejectedInput, Shape: core.ReplyText, Text: rejectedInputResponse}, nil
	}

	// a persisted selection can point at a capability that lost its provider
	// after a restart without the backing key
	provider, ok := d.providers[capability]
	if !ok {
		return nil, fmt.Errorf("%s: %w", desc.Service, ErrUnavailable)
	}

	if d.notify != nil {
		d.notify.Busy(ctx, chatId, desc.Reply)
	}

	result, err := provider.Invoke(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", desc.Service, err)
	}

	if err := d.store.IncrementUsage(user.UserId, desc.Service); err != nil {
		return nil, fmt.Errorf("counting usage: %w", err)
	}

	d.log.With(sl.User(user.UserId), slog.String("service", desc.Service)).Info("request served")

	return &Reply{
		Status:   StatusOK,
		Shape:    desc.Reply,
		Text:     result.Text,
		ImageURL: result.ImageURL,
		Audio:    result.Audio,
	}, nil
}
