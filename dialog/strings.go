package dialog

// User-facing phrases. The %s/%d slots are filled by the dialog steps.
const (
	phraseGreeting       = "Hello%s! This is our shop bot. Tap the button below to browse the catalog."
	phraseChooseCategory = "Please choose a category:"
	phraseChooseProduct  = "Products in %s:"
	phraseProductDetail  = "%s\n\n%s\n\nPrice: %s %s"
	phraseOrderConfirm   = "You are ordering %s for %s %s. How would you like to pay?"
	phrasePaymentLink    = "Follow this link to complete your payment:\n%s"
	phrasePaymentDone    = "Your payment for %s went through. Thank you for your order!"
	phraseInviteAgent    = "Inviting an operator to the chat. Please hold on."

	buttonStartSession = "Show catalog"
	buttonOrderProduct = "Order"
	buttonPayPaypal    = "Pay with PayPal"
	buttonPayStripe    = "Pay with Stripe"
)
