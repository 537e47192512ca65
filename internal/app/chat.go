package app

import (
	"context"
	"fmt"

	"github.com/devcanvas/devcanvas/internal/backend"
	"github.com/devcanvas/devcanvas/internal/config"
	"github.com/devcanvas/devcanvas/internal/util"
)

// SelectChannel switches the active channel and re-points the message feed
// subscription at it.
func (w *Workspace) SelectChannel(channelID string) {
	w.mu.Lock()
	if w.unsub != nil {
		w.unsub()
		w.unsub = nil
	}
	if w.backend != nil && channelID != "" {
		w.unsub = w.backend.SubscribeToChanges(
			backend.TableMessages,
			backend.Filter{Column: "channel_id", Value: channelID},
			w.onMessageEvent,
		)
	}
	w.mu.Unlock()

	w.state.SetCurrentChannel(channelID)
}

func (w *Workspace) onMessageEvent(ev backend.Event) {
	msg, ok := ev.Row.(*backend.Message)
	if !ok {
		return
	}
	switch ev.Type {
	case backend.EventInsert:
		util.LogInfo("[%s] %s: %s", msg.ChannelID, msg.AuthorName, msg.Content)
	case backend.EventDelete:
		util.LogDebug("message %s deleted", msg.ID)
	}
}

// Messages loads the active channel's history.
func (w *Workspace) Messages(ctx context.Context) ([]*backend.Message, error) {
	if w.backend == nil {
		return nil, config.ErrNotConfigured
	}
	channelID := w.state.Get().CurrentChannelID
	if channelID == "" {
		return nil, nil
	}
	return w.backend.ListMessages(ctx, channelID)
}

// SendMessage posts content to the active channel. On failure the error is
// returned so the caller can restore the composed text; nothing is retried.
func (w *Workspace) SendMessage(ctx context.Context, content string) error {
	return w.sendMessage(ctx, content, "")
}

// SendReply posts content threaded under parentID.
func (w *Workspace) SendReply(ctx context.Context, parentID, content string) error {
	return w.sendMessage(ctx, content, parentID)
}

func (w *Workspace) sendMessage(ctx context.Context, content, parentID string) error {
	if w.backend == nil {
		return config.ErrNotConfigured
	}
	st := w.state.Get()
	if st.CurrentChannelID == "" {
		return fmt.Errorf("no channel selected")
	}

	msg := &backend.Message{
		ChannelID:  st.CurrentChannelID,
		Content:    content,
		AuthorID:   st.UserID,
		AuthorName: st.UserName,
		ParentID:   parentID,
	}
	if err := w.backend.CreateMessage(ctx, msg); err != nil {
		util.LogError("failed to send message: %v", err)
		return err
	}
	return nil
}

// React attaches an emoji reaction to a message.
func (w *Workspace) React(ctx context.Context, messageID, emoji string) error {
	if w.backend == nil {
		return config.ErrNotConfigured
	}
	_, err := w.backend.AddReaction(ctx, messageID, emoji, w.ident.ID)
	return err
}
