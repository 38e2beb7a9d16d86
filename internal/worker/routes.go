package worker

import "github.com/vladislavdragonenkov/campusprint/internal/channel"

// route описывает, в какие каналы уходит сообщение данного типа.
type route struct {
	sms       channel.SMSTemplate
	email     channel.EmailTemplate
	pushTitle string
}

// routes покрывает каждый Kind; полнота проверяется тестом.
var routes = map[Kind]route{
	KindOrderCreated: {
		sms:       channel.SMSOrderCreated,
		email:     channel.EmailOrderCreated,
		pushTitle: "Order placed",
	},
	KindOrderConfirmed: {
		sms:       channel.SMSOrderConfirmed,
		pushTitle: "Order accepted",
	},
	KindOrderReady: {
		sms:       channel.SMSOrderReady,
		email:     channel.EmailOrderReady,
		pushTitle: "Ready for pickup",
	},
	KindOrderCompleted: {
		email:     channel.EmailOrderCompleted,
		pushTitle: "Order completed",
	},
	KindOrderCancelled: {
		sms:       channel.SMSOrderCancelled,
		email:     channel.EmailOrderCancelled,
		pushTitle: "Order cancelled",
	},
	KindPaymentSuccess: {
		sms:       channel.SMSPaymentSuccess,
		email:     channel.EmailPaymentSuccess,
		pushTitle: "Payment received",
	},
	KindPaymentFailed: {
		email:     channel.EmailPaymentFailed,
		pushTitle: "Payment failed",
	},
	KindShopRegistered: {
		email: channel.EmailShopWelcome,
	},
}
