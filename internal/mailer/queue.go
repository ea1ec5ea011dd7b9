package mailer

import (
	"context"
	"encoding/json"
	"fmt"
)

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// QueueNotifier renders the notification and publishes it for the consumer
// worker to deliver.
type QueueNotifier struct {
	To        string
	Publisher Publisher
}

func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	msg, err := Render(q.To, n)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}
	return q.Publisher.Publish(ctx, body)
}
