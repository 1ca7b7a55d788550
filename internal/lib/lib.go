// Package lib acts as a library for modules that do not fit
// strictly into other layers.
//
// It contains background job processing (using Redis/Asynq), the email
// client integration (Resend), and the OpenStreetMap API client.
package lib
