package services

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"
)

const (
	NotifyQueuePosition    = "queue_position"
	NotifyQueueStatus      = "queue_status"
	NotifyPurchaseComplete = "purchase_completed"
)

// Notification is a realtime message for one user.
type Notification struct {
	Type     string         `json:"type"`
	EventID  string         `json:"event_id"`
	Status   string         `json:"status,omitempty"`
	Position int            `json:"position,omitempty"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}

// PubNubNotifier publishes notifications on the user's personal channel.
type PubNubNotifier struct {
	pn *pubnub.PubNub
}

// NewPubNub builds a server-side PubNub client.
func NewPubNub(publishKey, subscribeKey, secretKey string) *pubnub.PubNub {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId("ticketsales-server"))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey
	return pubnub.NewPubNub(cfg)
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{pn: pn}
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

func (n *PubNubNotifier) Notify(ctx context.Context, userID string, msg Notification) error {
	_, _, err := n.pn.Publish().
		Channel(UserChannel(userID)).
		Message(msg).
		Execute()
	if err != nil {
		return fmt.Errorf("pubnub publish: %w", err)
	}
	return nil
}

// LogNotifier only logs notifications. It is used when PubNub is not configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID string, msg Notification) error {
	n.logger.Debug("notification", "user_id", userID, "type", msg.Type, "event_id", msg.EventID, "message", msg.Message)
	return nil
}

func positionMessage(position int) string {
	if position == 1 {
		return "You're next!"
	} else if position <= 5 {
		return fmt.Sprintf("Almost there! You're #%d", position)
	}
	return fmt.Sprintf("You are #%d in line", position)
}

// shouldNotifyPosition throttles position updates: users near the front hear about every
// move, users further back only about round numbers.
func shouldNotifyPosition(position int) bool {
	if position <= 5 {
		return true
	} else if position <= 20 {
		return position%2 == 0
	} else if position <= 100 {
		return position%10 == 0
	}
	return position%50 == 0
}
