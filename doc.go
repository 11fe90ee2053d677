// package sponsorpay implements the payment side of a sponsorship platform.
// Organizers connect their own Stripe, or Square account via OAuth, sponsors
// pay through that account, and the platform takes its fee as the
// application fee of the payment. Once a payment has gone through the
// sponsorships it paid for are marked as paid in the user defined store.
//
// sponsorpay.Service is the main way of using this package. It is created
// with the platform's Config, along with an OrganizerStore, and a
// SponsorshipStore. The PSQL type implements both stores. Below is a brief
// example as to how the Stripe flow would be implemented,
//
//	srv := sponsorpay.New(cfg, store, store, dispatcher)
//
//	// Send the organizer to the returned URL to connect their account.
//	url, err := srv.BeginConnect(ctx, sponsorpay.ProviderStripe, organizerID)
//
//	if err != nil {
//	    panic(err) // Don't actually do this.
//	}
//
//	// Stripe redirects back with the code and state.
//	res, err := srv.HandleCallback(ctx, sponsorpay.ProviderStripe, code, state)
//
//	if err != nil {
//	    // Redirect back with sponsorpay.CallbackErrorCode(err).
//	}
//
//	// Create a checkout for a sponsor, and redirect them to cr.URL.
//	cr, err := srv.CreateCheckout(ctx, sponsorpay.CheckoutRequest{
//	    OrganizerID: res.OrganizerID,
//	    Items: []sponsorpay.LineItem{
//	        {Name: "Gold", Price: 50000, Quantity: 1},
//	    },
//	    CoverFees:  true,
//	    SuccessURL: "https://example.com/success?session_id={CHECKOUT_SESSION_ID}",
//	    CancelURL:  "https://example.com/cancel",
//	    Metadata: map[string]string{
//	        "sponsorshipIds": "sp_123",
//	    },
//	})
//
//	if err != nil {
//	    panic(err) // Handle error properly.
//	}
//
//	// Once the sponsor is back on the success URL, verify the session.
//	st, err := srv.VerifyStripeSession(ctx, cr.SessionID, nil)
//
// Square payments are made synchronously through ProcessSquarePayment, which
// settles the sponsorships as part of the same call. Square access tokens
// expire, and are refreshed via the TokenManager as needed.
//
// All money is handled as int64 cents. ComputeFees splits a subtotal between
// the platform and the organizer, rounding the fee half up exactly once.
//
// Notifications about settled sponsorships are queued on a Notifier, the
// Dispatcher sends these in the background so a failing webhook never
// affects a settlement.
package sponsorpay
