// Package ws mirrors the indicator panel over WebSocket.
//
// Hub.ServeHTTP upgrades a request, sends the renderer's last frame
// immediately, and then the client receives a {"event":"frame","data":...}
// message every interval from Hub.Run. Clients whose send buffer fills up
// are disconnected. Pings keep idle connections alive.
package ws
