// Package similarity provides a Go client for the similarity webservice: collection
// management, CSV content upload, fine-tuning triggers and image similarity search.
//
// Import this package to use the client:
//
//	import similarity "github.com/ssciwr/similarity-client-go"
//
// Backend messages (responses carrying message_type/message) are surfaced through an
// alerts.Store, which UIs subscribe to.
package similarity
