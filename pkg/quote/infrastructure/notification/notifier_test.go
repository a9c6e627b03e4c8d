package notification

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteengine/pkg/quote/domain/model"
)

type sentMessage struct {
	recipient, subject, body string
}

type mockSender struct {
	sent []sentMessage
	err  error
}

func (m *mockSender) Send(recipient, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{recipient, subject, body})
	return nil
}

func TestCustomerNotifier(t *testing.T) {
	quoteID := uuid.New()
	customerID := uuid.New()
	transition := func(to model.QuoteStatus, reason string) model.QuoteTransitioned {
		return model.QuoteTransitioned{QuoteID: quoteID, CustomerID: customerID, To: to, Reason: reason}
	}

	t.Run("Notifies on customer facing transitions", func(t *testing.T) {
		sender := &mockSender{}
		notifier := NewCustomerNotifier(sender)

		require.NoError(t, notifier.Handle(transition(model.Sent, "")))
		require.NoError(t, notifier.Handle(transition(model.Rejected, "too expensive")))
		require.NoError(t, notifier.Handle(transition(model.Ready, "")))

		require.Len(t, sender.sent, 3)
		assert.Equal(t, customerID.String(), sender.sent[0].recipient)
		assert.Contains(t, sender.sent[0].subject, quoteID.String())
		assert.Contains(t, sender.sent[1].body, "too expensive")
	})

	t.Run("Ignores internal transitions", func(t *testing.T) {
		sender := &mockSender{}
		notifier := NewCustomerNotifier(sender)

		require.NoError(t, notifier.Handle(transition(model.Approved, "")))
		require.NoError(t, notifier.Handle(transition(model.InProduction, "")))
		require.NoError(t, notifier.Handle(model.QuoteCreated{QuoteID: quoteID}))
		assert.Empty(t, sender.sent)
	})

	t.Run("Sender failure", func(t *testing.T) {
		failure := errors.New("smtp down")
		notifier := NewCustomerNotifier(&mockSender{err: failure})

		err := notifier.Handle(transition(model.Sent, ""))
		assert.ErrorIs(t, err, failure)
	})
}
