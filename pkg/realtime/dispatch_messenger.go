package realtime

import (
	"fmt"

	"github.com/teamkard/teamkard/pkg/protocol"
)

// dispatchMessenger executes one messenger intent against the chat store.
// Actions go to one of two destinations:
//
//	backflow topic   send_message, create_chat — every observer of the
//	                 project learns about new content
//	local stream     history, chat lists, read acknowledgements, unread
//	                 counters — private bookkeeping of the requester
func (c *conn) dispatchMessenger(session *Session, in *protocol.Intent, sub *ProjectSubscription) error {
	userID := session.User.ID

	switch in.Type {
	case protocol.IntentMessengerSendMessage:
		msg, err := c.g.chats.CreateMessage(in.ChatID, userID, in.Content)
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		// The sender has obviously read everything up to their own
		// message; advancing the boundary here keeps their unread
		// counter at zero without a client round trip.
		if err := c.g.chats.MarkReadBefore(userID, in.ChatID, msg.ID); err != nil {
			return fmt.Errorf("advance read boundary: %w", err)
		}
		sub.Backflow.Publish(protocol.NewMessage(in.ProjectID, msg))

	case protocol.IntentMessengerCreateChat:
		chat, err := c.g.chats.CreateChat(in.ProjectID, in.Name)
		if err != nil {
			return fmt.Errorf("create chat: %w", err)
		}
		sub.Backflow.Publish(protocol.NewChat(in.ProjectID, chat))

	case protocol.IntentMessengerRequestChatMessages:
		msgs, err := c.g.chats.ChatMessages(in.ChatID, in.BeforeID, in.Limit)
		if err != nil {
			return fmt.Errorf("load chat messages: %w", err)
		}
		c.emitLocal(protocol.ChatMessages(in.ProjectID, in.ChatID, msgs))

	case protocol.IntentMessengerRequestChatsList:
		chats, err := c.g.chats.ProjectChats(in.ProjectID, userID)
		if err != nil {
			return fmt.Errorf("load chats list: %w", err)
		}
		c.emitLocal(protocol.ChatsList(in.ProjectID, chats))

	case protocol.IntentMessengerReadMessage:
		if err := c.g.chats.MarkRead(userID, in.MessageID); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		c.emitLocal(protocol.MessageRead(in.ProjectID, in.ChatID, in.MessageID, userID))

	case protocol.IntentMessengerReadMessagesBefore:
		if err := c.g.chats.MarkReadBefore(userID, in.ChatID, in.MessageID); err != nil {
			return fmt.Errorf("move read boundary: %w", err)
		}
		count, err := c.g.chats.UnreadCount(userID, in.ChatID)
		if err != nil {
			return fmt.Errorf("count unread: %w", err)
		}
		c.emitLocal(protocol.ChatUnreadCount(in.ProjectID, in.ChatID, count))

	default:
		return fmt.Errorf("unhandled messenger intent %q", in.Type)
	}
	return nil
}
