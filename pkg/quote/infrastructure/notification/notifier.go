package notification

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"quoteengine/pkg/common/domain"
	"quoteengine/pkg/quote/domain/model"
)

type Sender interface {
	Send(recipient, subject, body string) error
}

// LogSender writes notifications to the log. It is used until a mail
// gateway is configured.
type LogSender struct {
	Logger log.FieldLogger
}

func (s LogSender) Send(recipient, subject, body string) error {
	s.Logger.WithFields(log.Fields{
		"recipient": recipient,
		"subject":   subject,
		"body":      body,
	}).Info("customer notification")
	return nil
}

// CustomerNotifier tells the customer of a quote about the transitions that
// need their attention.
type CustomerNotifier struct {
	sender Sender
}

func NewCustomerNotifier(sender Sender) *CustomerNotifier {
	return &CustomerNotifier{sender: sender}
}

// Handle is subscribed to QuoteTransitioned.
func (n *CustomerNotifier) Handle(event domain.Event) error {
	transitioned, ok := event.(model.QuoteTransitioned)
	if !ok {
		return nil
	}

	var subject, body string
	switch transitioned.To {
	case model.Sent:
		subject = fmt.Sprintf("Quote %s is ready for your review", transitioned.QuoteID)
		body = "Please approve or reject the quote."
	case model.Rejected:
		subject = fmt.Sprintf("Quote %s was rejected", transitioned.QuoteID)
		body = "The quote was rejected."
		if transitioned.Reason != "" {
			body = fmt.Sprintf("The quote was rejected. Reason: %s", transitioned.Reason)
		}
	case model.Ready:
		subject = fmt.Sprintf("Your order for quote %s is ready", transitioned.QuoteID)
		body = "Production has finished and the order can be collected."
	default:
		return nil
	}

	err := n.sender.Send(transitioned.CustomerID.String(), subject, body)
	return errors.Wrapf(err, "notify customer %s", transitioned.CustomerID)
}
