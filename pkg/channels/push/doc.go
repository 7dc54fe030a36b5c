// Package push delivers PUSH channel jobs through Firebase Cloud Messaging.
//
// Each job is sent as one multicast to the device tokens the dispatcher copied
// from the recipient's preference. The delivery counts as sent when any device
// accepts it. Tokens FCM reports as unregistered are handed to the stale-token
// handler so they can be removed from the preference.
package push
