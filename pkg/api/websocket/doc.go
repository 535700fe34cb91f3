// Package websocket streams request lifecycle events over WebSocket.
//
// Clients connect to /api/v1/requests/:id/ws and receive every event the
// local node publishes for that request, one JSON document per message.
// The stream closes when the client goes away.
package websocket
