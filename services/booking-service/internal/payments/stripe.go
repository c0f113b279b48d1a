// Package payments verifies the payment reference attached to a booking
// request. The platform's billing surface owns the actual payment lifecycle;
// this service only confirms the referenced charge succeeded before a request
// is accepted.
package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

type Verifier struct {
	enabled bool
}

// NewVerifier configures the Stripe client. With an empty key verification is
// disabled and every reference is accepted (dev/test deployments).
func NewVerifier(secretKey string) *Verifier {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return &Verifier{}
	}
	stripe.Key = secretKey
	return &Verifier{enabled: true}
}

func (v *Verifier) Enabled() bool {
	return v != nil && v.enabled
}

// VerifyTransaction confirms transactionID refers to a succeeded
// PaymentIntent.
func (v *Verifier) VerifyTransaction(ctx context.Context, transactionID string) error {
	if !v.Enabled() {
		return nil
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(transactionID, params)
	if err != nil {
		return fmt.Errorf("look up payment %s: %w", transactionID, err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("payment %s not captured (status %s)", transactionID, pi.Status)
	}
	return nil
}
