// Package notify delivers short user-facing status messages about the
// supervised server.
package notify

import (
	"github.com/core-tools/hsu-rackguard/pkg/logging"
)

type Image string

const (
	ImagePending Image = "pending"
	ImageSuccess Image = "success"
	ImageFailed  Image = "failed"
)

type Options struct {
	Title string
	Image Image
}

// Notifier shows a message to the user. Delivery is best effort.
type Notifier interface {
	Notify(message string, opts Options)
}

// LogNotifier writes notifications to a logger, failures at error level
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(message string, opts Options) {
	line := message
	if opts.Title != "" {
		line = opts.Title + " " + message
	}

	switch opts.Image {
	case ImageFailed:
		n.logger.Errorf("[%s] %s", opts.Image, line)
	case "":
		n.logger.Infof("%s", line)
	default:
		n.logger.Infof("[%s] %s", opts.Image, line)
	}
}

type discard struct{}

// Discard drops every notification
var Discard Notifier = discard{}

func (discard) Notify(string, Options) {}
