package bot

import (
	"Omni/core"
	"Omni/lib/tokenizer"
	"Omni/storage"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	result  *core.Result
	err     error
	invoked int
}

func (f *fakeProvider) Invoke(_ context.Context, _ *core.Payload) (*core.Result, error) {
	f.invoked++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type recordingNotifier struct {
	calls  int
	shapes []core.ReplyShape
}

func (r *recordingNotifier) Busy(_ context.Context, _ int64, shape core.ReplyShape) {
	r.calls++
	r.shapes = append(r.shapes, shape)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUser() *storage.User {
	return &storage.User{UserId: 100, Username: "alice", FirstName: "Alice"}
}

func newTestDispatcher(providers map[core.Capability]core.Provider) (*Dispatcher, *storage.MemoryStorage) {
	store := storage.NewMemoryStorage()
	d := NewDispatcher(store, providers, tokenizer.NewValidator(10), discardLogger())
	return d, store
}

func textPayload(text string) *core.Payload {
	return &core.Payload{Kind: core.KindText, Text: text}
}

func TestDispatchNoSelection(t *testing.T) {
	provider := &fakeProvider{result: &core.Result{Text: "hi"}}
	d, store := newTestDispatcher(map[core.Capability]core.Provider{core.CapChat: provider})

	reply, err := d.Dispatch(context.Background(), testUser(), 1, textPayload("hello"))
	require.NoError(t, err)
	assert.Equal(t, StatusNoSelection, reply.Status)
	assert.Equal(t, 0, provider.invoked, "unset selection must never invoke a provider")

	// the user is still recorded on first contact
	assert.NotNil(t, store.GetUser(100))
}

func TestDispatchKindMismatch(t *testing.T) {
	provider := &fakeProvider{result: &core.Result{Audio: []byte{1}}}
	d, store := newTestDispatcher(map[core.Capability]core.Provider{core.CapSpeech: provider})

	user := testUser()
	_, err := d.Select(user, core.CapSpeech.Tag())
	require.NoError(t, err)

	reply, err := d.Dispatch(context.Background(), user, 1, &core.Payload{Kind: core.KindImage, Data: []byte{0xff}})
	require.NoError(t, err)
	assert.Equal(t, StatusKindMismatch, reply.Status)
	assert.Equal(t, 0, provider.invoked)

	counts, err := store.UsageCounts(user.UserId)
	require.NoError(t, err)
	assert.Empty(t, counts, "mismatch must not touch counters")
}

func TestDispatchRejectsInvalidText(t *testing.T) {
	provider := &fakeProvider{result: &core.Result{Text: "hi"}}
	d, store := newTestDispatcher(map[core.Capability]core.Provider{core.CapChat: provider})

	user := testUser()
	_, err := d.Select(user, core.CapChat.Tag())
	require.NoError(t, err)

	for name, text := range map[string]string{
		"empty":      "",
		"blank":      "   ",
		"over limit": strings.Repeat("word ", 11),
	} {
		reply, err := d.Dispatch(context.Background(), user, 1, textPayload(text))
		require.NoError(t, err, name)
		assert.Equal(t, StatusRejectedInput, reply.Status, name)
	}

	assert.Equal(t, 0, provider.invoked)
	counts, err := store.UsageCounts(user.UserId)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestDispatchSuccessCountsUsage(t *testing.T) {
	provider := &fakeProvider{result: &core.Result{Text: "answer"}}
	notifier := &recordingNotifier{}
	d, store := newTestDispatcher(map[core.Capability]core.Provider{core.CapChat: provider})
	d.SetNotifier(notifier)

	user := testUser()
	_, err := d.Select(user, core.CapChat.Tag())
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		reply, err := d.Dispatch(context.Background(), user, 1, textPayload("question"))
		require.NoError(t, err)
		assert.Equal(t, StatusOK, reply.Status)
		assert.Equal(t, core.ReplyText, reply.Shape)
		assert.Equal(t, "answer", reply.Text)

		counts, err := store.UsageCounts(user.UserId)
		require.NoError(t, err)
		assert.Equal(t, i, counts[core.CapChat.Service()])
	}

	assert.Equal(t, 3, provider.invoked)
	assert.Equal(t, 3, notifier.calls, "every served request is acknowledged")
	assert.Equal(t, core.ReplyText, notifier.shapes[0], "acknowledgment matches the reply shape")
}

func TestDispatchProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("quota exceeded")}
	d, store := newTestDispatcher(map[core.Capability]core.Provider{core.CapChat: provider})

	user := testUser()
	_, err := d.Select(user, core.CapChat.Tag())
	require.NoError(t, err)

	reply, err := d.Dispatch(context.Background(), user, 1, textPayload("question"))
	require.Error(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, 1, provider.invoked)

	counts, err := store.UsageCounts(user.UserId)
	require.NoError(t, err)
	assert.Empty(t, counts, "failed calls must not be counted")
}

func TestSelectUnavailableCapability(t *testing.T) {
	// only chat is bound, as when the Gemini key is not configured
	provider := &fakeProvider{result: &core.Result{Text: "hi"}}
	d, store := newTestDispatcher(map[core.Capability]core.Provider{core.CapChat: provider})

	user := testUser()
	_, err := d.Select(user, core.CapGemini.Tag())
	require.ErrorIs(t, err, ErrUnavailable)

	tag, err := store.Selection(user.UserId)
	require.NoError(t, err)
	assert.Equal(t, "", tag, "rejected selection must not reach the store")
	assert.NotNil(t, store.GetUser(user.UserId), "the user is still recorded")

	// a bound capability still selects fine
	capability, err := d.Select(user, core.CapChat.Tag())
	require.NoError(t, err)
	assert.Equal(t, core.CapChat, capability)
}

func TestDispatchStaleSelection(t *testing.T) {
	// a selection persisted before a restart that dropped the provider
	d, store := newTestDispatcher(map[core.Capability]core.Provider{})
	notifier := &recordingNotifier{}
	d.SetNotifier(notifier)

	user := testUser()
	require.NoError(t, store.SetSelection(user.UserId, core.CapGemini.Tag()))

	_, err := d.Dispatch(context.Background(), user, 1, textPayload("question"))
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 0, notifier.calls, "no busy acknowledgment for a dead selection")
}

func TestSelectValidatesTag(t *testing.T) {
	d, store := newTestDispatcher(nil)

	user := testUser()
	_, err := d.Select(user, "bogus")
	require.Error(t, err)

	tag, err := store.Selection(user.UserId)
	require.NoError(t, err)
	assert.Equal(t, "", tag, "invalid tags must never reach the store")
}

func TestSelectIdempotent(t *testing.T) {
	provider := &fakeProvider{result: &core.Result{ImageURL: "https://img.example/1.png"}}
	d, _ := newTestDispatcher(map[core.Capability]core.Provider{core.CapImage: provider})

	user := testUser()
	for i := 0; i < 2; i++ {
		capability, err := d.Select(user, core.CapImage.Tag())
		require.NoError(t, err)
		assert.Equal(t, core.CapImage, capability)
	}

	selected, err := d.Selection(user.UserId)
	require.NoError(t, err)
	assert.Equal(t, core.CapImage, selected)
}

func TestSelectionUnknownPersistedTag(t *testing.T) {
	d, store := newTestDispatcher(nil)
	require.NoError(t, store.SetSelection(100, "retired-tag"))

	selected, err := d.Selection(100)
	require.NoError(t, err)
	assert.Equal(t, core.CapNone, selected, "unknown persisted tag reads as unset")
}

// Full walk of the selection and dispatch flow: register, pick image
// generation, generate once, then send a photo to the wrong capability.
func TestImageGenerationScenario(t *testing.T) {
	imageProvider := &fakeProvider{result: &core.Result{ImageURL: "https://img.example/1.png"}}
	d, store := newTestDispatcher(map[core.Capability]core.Provider{core.CapImage: imageProvider})

	user := testUser()
	require.NoError(t, d.Register(user))
	assert.NotNil(t, store.GetUser(user.UserId))

	selected, err := d.Selection(user.UserId)
	require.NoError(t, err)
	assert.Equal(t, core.CapNone, selected)

	_, err = d.Select(user, core.CapImage.Tag())
	require.NoError(t, err)

	reply, err := d.Dispatch(context.Background(), user, 1, textPayload("a red bicycle"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, core.ReplyPhoto, reply.Shape)
	assert.Equal(t, "https://img.example/1.png", reply.ImageURL)

	counts, err := d.Counts(user.UserId)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[core.CapImage.Service()])

	// a photo is the wrong kind for image generation
	reply, err = d.Dispatch(context.Background(), user, 1, &core.Payload{Kind: core.KindImage, Data: []byte{0xff}})
	require.NoError(t, err)
	assert.Equal(t, StatusKindMismatch, reply.Status)

	counts, err = d.Counts(user.UserId)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[core.CapImage.Service()], "counter unchanged after mismatch")
	assert.Equal(t, 1, imageProvider.invoked)
}

func TestOverlongChatScenario(t *testing.T) {
	provider := &fakeProvider{result: &core.Result{Text: "hi"}}
	store := storage.NewMemoryStorage()
	d := NewDispatcher(store,
		map[core.Capability]core.Provider{core.CapChat: provider},
		tokenizer.NewValidator(4096), discardLogger())

	user := testUser()
	_, err := d.Select(user, core.CapChat.Tag())
	require.NoError(t, err)

	long := strings.TrimSpace(strings.Repeat("word ", 5000))
	reply, err := d.Dispatch(context.Background(), user, 1, textPayload(long))
	require.NoError(t, err)
	assert.Equal(t, StatusRejectedInput, reply.Status)
	assert.Equal(t, 0, provider.invoked)

	counts, err := d.Counts(user.UserId)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestCountersIndependentAcrossUsers(t *testing.T) {
	provider := &fakeProvider{result: &core.Result{Text: "hi"}}
	d, _ := newTestDispatcher(map[core.Capability]core.Provider{core.CapChat: provider})

	for i := int64(1); i <= 3; i++ {
		user := &storage.User{UserId: i, Username: fmt.Sprintf("user%d", i)}
		_, err := d.Select(user, core.CapChat.Tag())
		require.NoError(t, err)

		for j := int64(0); j < i; j++ {
			_, err := d.Dispatch(context.Background(), user, i, textPayload("question"))
			require.NoError(t, err)
		}
	}

	for i := int64(1); i <= 3; i++ {
		counts, err := d.Counts(i)
		require.NoError(t, err)
		assert.Equal(t, int(i), counts[core.CapChat.Service()])
	}
}
