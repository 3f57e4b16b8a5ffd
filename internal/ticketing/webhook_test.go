package ticketing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"order.completed","orderId":"ord_1"}`)
	c := New(Config{WebhookSecret: "s3cret"}, nil)

	require.True(t, c.VerifyWebhookSignature(body, Sign([]byte("s3cret"), body)))
	require.True(t, c.VerifyWebhookSignature(body, "sha256="+Sign([]byte("s3cret"), body)))
	require.False(t, c.VerifyWebhookSignature(body, Sign([]byte("other"), body)))
	require.False(t, c.VerifyWebhookSignature(append(body, ' '), Sign([]byte("s3cret"), body)))
	require.False(t, c.VerifyWebhookSignature(body, ""))
	require.False(t, c.VerifyWebhookSignature(body, "not-hex"))
}

func TestVerifyWebhookSignature_NoSecret(t *testing.T) {
	body := []byte(`{}`)
	require.False(t, New(Config{}, nil).VerifyWebhookSignature(body, "anything"))
	require.True(t, New(Config{AllowUnsigned: true}, nil).VerifyWebhookSignature(body, ""))
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"event":"ticket.issued","orderId":"o","ticketId":"t","data":{"x":1}}`))
	require.NoError(t, err)
	require.Equal(t, EventTicketIssued, ev.Event)
	require.Equal(t, "o", ev.OrderID)
	require.Equal(t, "t", ev.TicketID)

	_, err = ParseWebhook([]byte(`{`))
	require.Error(t, err)
}
