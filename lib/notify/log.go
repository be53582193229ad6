package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LogPoster shows notifications as log entries.
type LogPoster struct {
	Logger log.FieldLogger
}

func (p LogPoster) logger() log.FieldLogger {
	if p.Logger == nil {
		return log.StandardLogger()
	}
	return p.Logger
}

func (p LogPoster) RegisterChannel(_ context.Context, ch Channel) error {
	p.logger().WithFields(log.Fields{"channel": ch.ID, "name": ch.Name}).Info("notification channel registered")
	return nil
}

func (p LogPoster) Post(_ context.Context, n Notification) error {
	p.logger().WithFields(log.Fields{
		"id":      n.ID,
		"channel": n.ChannelID,
		"title":   n.Title,
	}).Info(n.Body)
	return nil
}
