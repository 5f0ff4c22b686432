// Package events carries comment change notifications between server
// instances over NATS.
package events

import (
	"context"

	"github.com/edgeee/commentsystem/widget"
)

// Event topics, one per widget.ChangeKind.
const (
	TopicCommentCreated = widget.TopicPrefix + string(widget.CommentCreated)
	TopicReplyAdded     = widget.TopicPrefix + string(widget.ReplyAdded)
	TopicReactionAdded  = widget.TopicPrefix + string(widget.ReactionAdded)

	// TopicAll matches every comment topic.
	TopicAll = widget.TopicPrefix + ">"
)

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// NoopPublisher is a Publisher that does nothing (used when NATS is not
// configured).
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
