package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteengine/pkg/common/domain"
	"quoteengine/pkg/quote/domain/model"
)

func TestDispatcher(t *testing.T) {
	t.Run("Logs and fans out to subscribers", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		d := NewDispatcher(logger)

		var received []domain.Event
		d.Subscribe("SupplierAssigned", func(e domain.Event) error {
			received = append(received, e)
			return nil
		})

		event := model.SupplierAssigned{QuoteID: uuid.New(), LineItemID: uuid.New(), SupplierID: uuid.New()}
		require.NoError(t, d.Dispatch(event))
		require.NoError(t, d.Dispatch(model.QuoteCreated{QuoteID: uuid.New()}))

		assert.Equal(t, []domain.Event{event}, received)
		require.Len(t, hook.AllEntries(), 2)
		assert.Equal(t, "SupplierAssigned", hook.AllEntries()[0].Data["event"])
	})

	t.Run("Failing handler does not stop the others", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		d := NewDispatcher(logger)

		failure := errors.New("mailer down")
		calls := 0
		d.Subscribe("QuoteCreated", func(domain.Event) error { calls++; return failure })
		d.Subscribe("QuoteCreated", func(domain.Event) error { calls++; return nil })

		err := d.Dispatch(model.QuoteCreated{QuoteID: uuid.New()})
		assert.ErrorIs(t, err, failure)
		assert.Equal(t, 2, calls)
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	})
}
